package linker

import "github.com/ksco/wld/pkg/utils"

// OutputSection is a container of chunks. The writer assigns each
// output section a unique, non-overlapping RVA and file-offset range;
// chunk addresses are relative to the section until SetRVA and
// SetFileOffset shift them.
type OutputSection struct {
	Name         string
	SectionIndex uint32
	Hdr          SectionHeader
	Chunks       []Chunker
}

func NewOutputSection(name string, idx uint32) *OutputSection {
	o := &OutputSection{Name: name, SectionIndex: idx}
	// Exactly eight bytes of name are kept, without a terminator.
	copy(o.Hdr.Name[:], name)
	return o
}

func (o *OutputSection) AddChunk(c Chunker) {
	o.Chunks = append(o.Chunks, c)

	off := uint64(o.Hdr.VirtualSize)
	off = utils.AlignTo(off, uint64(c.Alignment()))
	c.SetRVA(off)
	c.SetFileOff(off)
	off += c.Size()

	o.Hdr.VirtualSize = uint32(off)
	if c.HasData() {
		o.Hdr.SizeOfRawData = uint32(utils.AlignTo(off, FileAlignment))
	}
}

func (o *OutputSection) AddPermissions(perm uint32) {
	o.Hdr.Characteristics |= perm & PermMask
}

func (o *OutputSection) SetRVA(rva uint64) {
	o.Hdr.VirtualAddress = uint32(rva)
	for _, c := range o.Chunks {
		c.SetRVA(c.GetRVA() + rva)
	}
}

func (o *OutputSection) SetFileOffset(off uint64) {
	o.Hdr.PointerToRawData = uint32(off)
	for _, c := range o.Chunks {
		c.SetFileOff(c.GetFileOff() + off)
	}
}

func (o *OutputSection) GetHeader() SectionHeader {
	hdr := o.Hdr
	if hdr.SizeOfRawData == 0 {
		hdr.PointerToRawData = 0
	}
	return hdr
}
