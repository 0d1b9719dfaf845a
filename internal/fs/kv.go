package fs

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Set parses "name=value" and stores value under name.
func (s *Store) Set(msg string) error {
	eq := strings.IndexByte(msg, '=')
	if eq <= 0 || eq == len(msg)-1 {
		return fmt.Errorf("%w: want name=value, got %q", ErrMalformed, msg)
	}
	return s.WriteString(msg[:eq], msg[eq+1:])
}

// Get returns the stored value of name as text.
func (s *Store) Get(name string) (string, error) {
	b, err := s.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const selfTestName = "testfile"

// SelfTest writes a three-chunk pattern, reads it back, deletes it and checks
// it is gone.
func (s *Store) SelfTest() error {
	data := make([]byte, PayloadSize*3)
	for i := range data {
		data[i] = 'A' + byte(i%26)
	}

	// 1) write
	if err := s.Write(selfTestName, data); err != nil {
		return fmt.Errorf("self test: write: %w", err)
	}

	// 2) read & verify
	buf := make([]byte, len(data)+1)
	n, err := s.Read(selfTestName, buf)
	if err != nil {
		return fmt.Errorf("self test: read: %w", err)
	}
	if !bytes.Equal(buf[:n], data) {
		return errors.New("self test: data mismatch")
	}

	// 3) delete
	if err := s.Delete(selfTestName); err != nil {
		return fmt.Errorf("self test: delete: %w", err)
	}

	// 4) ensure it's gone
	if _, err := s.Find(selfTestName); !errors.Is(err, ErrNotFound) {
		return errors.New("self test: file still exists after delete")
	}
	return nil
}
