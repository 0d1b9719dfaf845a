package flash

import "fmt"

// Region is the slice of the address space handed to the record store.
// Addresses are absolute (Base is where flash is mapped).
type Region struct {
	Base     uint32 // address of flash offset 0
	Start    uint32 // first byte of the store, page aligned
	End      uint32 // one past the last byte of flash
	PageSize uint32
}

// NewRegion places the store on the first page boundary at or after codeEnd
// and runs it to the end of flash.
func NewRegion(base, codeEnd, size, pageSize uint32) (Region, error) {
	if pageSize == 0 || size%pageSize != 0 {
		return Region{}, fmt.Errorf("flash region: size %d not a multiple of page size %d", size, pageSize)
	}
	if codeEnd < base {
		codeEnd = base
	}
	start := base + (codeEnd-base+pageSize-1)/pageSize*pageSize
	end := base + size
	if start >= end {
		return Region{}, fmt.Errorf("flash region: code ends at %#x, no room before %#x", codeEnd, end)
	}
	return Region{Base: base, Start: start, End: end, PageSize: pageSize}, nil
}

// Offset converts an absolute address into a device offset.
func (r Region) Offset(addr uint32) uint32 { return addr - r.Base }

// Contains reports whether n bytes at addr lie inside the region.
func (r Region) Contains(addr, n uint32) bool {
	return addr >= r.Start && uint64(addr)+uint64(n) <= uint64(r.End)
}

// Size is the region length in bytes.
func (r Region) Size() uint32 { return r.End - r.Start }

// Pages is the number of whole pages in the region.
func (r Region) Pages() uint32 { return r.Size() / r.PageSize }

// FirstPage is the device page index of Start.
func (r Region) FirstPage() uint32 { return (r.Start - r.Base) / r.PageSize }

func (r Region) String() string {
	return fmt.Sprintf("0x%08X-0x%08X (%d pages of %d)", r.Start, r.End, r.Pages(), r.PageSize)
}
