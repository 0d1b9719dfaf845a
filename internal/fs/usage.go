package fs

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"mcukern/internal/flash"
)

// PageClass groups pages by how much of them holds live chunks.
type PageClass uint8

const (
	PageEmpty    PageClass = iota // no live chunk
	PageModerate                  // under 80% live
	PageHeavy                     // 80% or more live
)

func (c PageClass) String() string {
	switch c {
	case PageEmpty:
		return "empty"
	case PageModerate:
		return "moderate"
	default:
		return "heavy"
	}
}

// PageUsage counts the chunks of one page.
type PageUsage struct {
	Addr  uint32
	Used  int
	Dead  int
	Free  int
	Class PageClass
}

// Usage is a snapshot of region occupancy.
type Usage struct {
	Region flash.Region
	Pages  []PageUsage

	EmptyPages    int
	ModeratePages int
	HeavyPages    int

	Files       int
	TotalChunks int
	UsedChunks  int
	DeadChunks  int // reclaimable only by Format
	FreeChunks  int
}

func (u Usage) UsedBytes() uint64 { return uint64(u.UsedChunks) * ChunkSize }
func (u Usage) DeadBytes() uint64 { return uint64(u.DeadChunks) * ChunkSize }
func (u Usage) FreeBytes() uint64 { return uint64(u.FreeChunks) * ChunkSize }

// Usage scans the region page by page, yielding between pages.
func (s *Store) Usage() (Usage, error) {
	u := Usage{Region: s.region}
	perPage := int(s.region.PageSize / ChunkSize)

	for page := s.region.Start; page+s.region.PageSize <= s.region.End; page += s.region.PageSize {
		pu := PageUsage{Addr: page}
		for addr := page; addr < page+s.region.PageSize; addr += ChunkSize {
			c, err := s.readChunk(addr)
			if err != nil {
				return u, err
			}
			switch {
			case c.live():
				pu.Used++
				if c.kind() == KindFileHead {
					u.Files++
				}
			case c.free():
				pu.Free++
			default:
				pu.Dead++
			}
		}

		switch {
		case pu.Used == 0:
			pu.Class = PageEmpty
			u.EmptyPages++
		case pu.Used*100 >= perPage*80:
			pu.Class = PageHeavy
			u.HeavyPages++
		default:
			pu.Class = PageModerate
			u.ModeratePages++
		}

		u.Pages = append(u.Pages, pu)
		u.TotalChunks += perPage
		u.UsedChunks += pu.Used
		u.DeadChunks += pu.Dead
		u.FreeChunks += pu.Free
		s.pause()
	}
	return u, nil
}

// Map renders one character per page: '.' empty, 'o' moderate, '#' heavy.
func (u Usage) Map() string {
	var b strings.Builder
	for _, p := range u.Pages {
		switch p.Class {
		case PageEmpty:
			b.WriteByte('.')
		case PageModerate:
			b.WriteByte('o')
		default:
			b.WriteByte('#')
		}
	}
	return b.String()
}

func (u Usage) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filesystem usage:\n")
	fmt.Fprintf(&b, "  Total Pages    : %d\n", len(u.Pages))
	fmt.Fprintf(&b, "    Empty Pages  : %d\n", u.EmptyPages)
	fmt.Fprintf(&b, "    Good Pages   : %d\n", u.ModeratePages)
	fmt.Fprintf(&b, "    Bad Pages    : %d\n", u.HeavyPages)
	fmt.Fprintf(&b, "  Page Size      : %s\n", humanize.IBytes(uint64(u.Region.PageSize)))
	fmt.Fprintf(&b, "  Region         : 0x%08X - 0x%08X\n", u.Region.Start, u.Region.End)
	fmt.Fprintf(&b, "  Total Size     : %s\n", humanize.IBytes(uint64(u.TotalChunks)*ChunkSize))
	fmt.Fprintf(&b, "  Used           : %s\n", humanize.IBytes(u.UsedBytes()))
	fmt.Fprintf(&b, "  Dead           : %s\n", humanize.IBytes(u.DeadBytes()))
	fmt.Fprintf(&b, "  Free           : %s\n", humanize.IBytes(u.FreeBytes()))
	fmt.Fprintf(&b, "  Files          : %d\n", u.Files)
	fmt.Fprintf(&b, "  Total Chunks   : %d\n", u.TotalChunks)
	fmt.Fprintf(&b, "    Used Chunks  : %d\n", u.UsedChunks)
	fmt.Fprintf(&b, "    Dead Chunks  : %d\n", u.DeadChunks)
	fmt.Fprintf(&b, "    Free Chunks  : %d\n", u.FreeChunks)
	return b.String()
}
