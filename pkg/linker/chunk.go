package linker

import (
	"fmt"

	"github.com/ksco/wld/pkg/utils"
)

// Chunker is the unit of output. Every byte of the final image is owned
// by exactly one chunk. Chunks either carry bytes from an input section,
// describe uninitialized storage, or are synthesized by the writer
// (import tables).
type Chunker interface {
	Size() uint64
	HasData() bool
	CopyBuf(ctx *Context)
	ApplyRelocations(ctx *Context)
	Alignment() uint32
	Permissions() uint32
	SectionName() string
	IsRoot() bool
	IsLive() bool
	MarkLive()
	PrintDiscardMessage()
	GetRVA() uint64
	SetRVA(v uint64)
	GetFileOff() uint64
	SetFileOff(v uint64)
	SetOutputSection(o *OutputSection)
	GetOutputSection() *OutputSection
}

type Chunk struct {
	RVA     uint64
	FileOff uint64
	Align   uint32
	Out     *OutputSection
}

func NewChunk() Chunk {
	return Chunk{Align: 1}
}

func (c *Chunk) Size() uint64                  { return 0 }
func (c *Chunk) HasData() bool                 { return true }
func (c *Chunk) CopyBuf(ctx *Context)          {}
func (c *Chunk) ApplyRelocations(ctx *Context) {}
func (c *Chunk) Alignment() uint32             { return c.Align }
func (c *Chunk) Permissions() uint32           { return 0 }
func (c *Chunk) SectionName() string {
	utils.Fatal("chunk has no section name")
	return ""
}
func (c *Chunk) IsRoot() bool                      { return false }
func (c *Chunk) IsLive() bool                      { return true }
func (c *Chunk) MarkLive()                         {}
func (c *Chunk) PrintDiscardMessage()              {}
func (c *Chunk) GetRVA() uint64                    { return c.RVA }
func (c *Chunk) SetRVA(v uint64)                   { c.RVA = v }
func (c *Chunk) GetFileOff() uint64                { return c.FileOff }
func (c *Chunk) SetFileOff(v uint64)               { c.FileOff = v }
func (c *Chunk) SetOutputSection(o *OutputSection) { c.Out = o }
func (c *Chunk) GetOutputSection() *OutputSection  { return c.Out }

// SectionChunk wraps one section of an object file.
type SectionChunk struct {
	Chunk
	File         *ObjectFile
	Hdr          *SectionHeader
	SectionIndex uint32
	Name         string
	Contents     []byte
	Rels         []Reloc

	AssocChildren []*SectionChunk
	Live          bool
	IsAssocChild  bool
}

func NewSectionChunk(file *ObjectFile, hdr *SectionHeader, idx uint32) *SectionChunk {
	s := &SectionChunk{
		Chunk:        NewChunk(),
		File:         file,
		Hdr:          hdr,
		SectionIndex: idx,
	}
	s.Name = sectionName(hdr.Name, file.StringTab)

	if !s.IsBSS() {
		end := uint64(hdr.PointerToRawData) + uint64(hdr.SizeOfRawData)
		if end > uint64(len(file.File.Contents)) {
			utils.Fatal(fmt.Sprintf("%s: section %s is out of range",
				file.File.Name, s.Name))
		}
		s.Contents = file.File.Contents[hdr.PointerToRawData:end]
	}

	if bits := (hdr.Characteristics & 0x00F00000) >> 20; bits != 0 {
		s.Align = uint32(1) << (bits - 1)
	}

	s.Rels = file.readRelocations(hdr)
	return s
}

func (s *SectionChunk) Size() uint64 {
	return uint64(s.Hdr.SizeOfRawData)
}

func (s *SectionChunk) HasData() bool {
	return !s.IsBSS()
}

func (s *SectionChunk) IsBSS() bool {
	return s.Hdr.Characteristics&IMAGE_SCN_CNT_UNINITIALIZED_DATA != 0
}

func (s *SectionChunk) IsCOMDAT() bool {
	return s.Hdr.Characteristics&IMAGE_SCN_LNK_COMDAT != 0
}

func (s *SectionChunk) Permissions() uint32 {
	return s.Hdr.Characteristics & PermMask
}

func (s *SectionChunk) SectionName() string {
	return s.Name
}

// Roots for the liveness mark. COMDAT sections, associative children and
// code sections must be reached through relocations or their parent.
func (s *SectionChunk) IsRoot() bool {
	return !s.IsCOMDAT() && !s.IsAssocChild &&
		s.Hdr.Characteristics&IMAGE_SCN_CNT_CODE == 0
}

func (s *SectionChunk) IsLive() bool {
	return s.IsRoot() || s.Live
}

func (s *SectionChunk) MarkLive() {
	if s.Live {
		return
	}
	s.Live = true

	for i := range s.Rels {
		body := s.File.ResolveSymbol(s.Rels[i].SymbolTableIndex)
		if defined, ok := body.(Defined); ok {
			defined.MarkLive()
		}
	}
	for _, child := range s.AssocChildren {
		child.MarkLive()
	}
}

func (s *SectionChunk) AddAssociative(child *SectionChunk) {
	child.IsAssocChild = true
	s.AssocChildren = append(s.AssocChildren, child)
}

func (s *SectionChunk) CopyBuf(ctx *Context) {
	if s.IsBSS() {
		return
	}
	copy(ctx.Buf[s.FileOff:], s.Contents)
}

func (s *SectionChunk) ApplyRelocations(ctx *Context) {
	for i := range s.Rels {
		s.applyReloc(ctx, &s.Rels[i])
	}
}

// Relocations add to the bytes already in the buffer, so the addend
// stored in the section contents is preserved.
func add16(loc []byte, v uint16) { utils.Write[uint16](loc, utils.Read[uint16](loc)+v) }
func add32(loc []byte, v uint32) { utils.Write[uint32](loc, utils.Read[uint32](loc)+v) }
func add64(loc []byte, v uint64) { utils.Write[uint64](loc, utils.Read[uint64](loc)+v) }

func (s *SectionChunk) applyReloc(ctx *Context, rel *Reloc) {
	body := s.File.ResolveSymbol(rel.SymbolTableIndex)
	defined, ok := body.(Defined)
	if !ok {
		utils.Fatal(fmt.Sprintf("undefined symbol: %s", body.Name()))
	}

	loc := ctx.Buf[s.FileOff+uint64(rel.VirtualAddress):]
	S := defined.RVA()
	P := s.RVA + uint64(rel.VirtualAddress)

	switch rel.Type {
	case IMAGE_REL_AMD64_ADDR32:
		add32(loc, uint32(ctx.Arg.ImageBase+S))
	case IMAGE_REL_AMD64_ADDR64:
		add64(loc, ctx.Arg.ImageBase+S)
	case IMAGE_REL_AMD64_ADDR32NB:
		add32(loc, uint32(S))
	case IMAGE_REL_AMD64_REL32:
		add32(loc, uint32(S-P-4))
	case IMAGE_REL_AMD64_REL32_1:
		add32(loc, uint32(S-P-5))
	case IMAGE_REL_AMD64_REL32_2:
		add32(loc, uint32(S-P-6))
	case IMAGE_REL_AMD64_REL32_3:
		add32(loc, uint32(S-P-7))
	case IMAGE_REL_AMD64_REL32_4:
		add32(loc, uint32(S-P-8))
	case IMAGE_REL_AMD64_REL32_5:
		add32(loc, uint32(S-P-9))
	case IMAGE_REL_AMD64_SECTION:
		add16(loc, uint16(s.Out.SectionIndex)+1)
	case IMAGE_REL_AMD64_SECREL:
		add32(loc, uint32(S-uint64(s.Out.Hdr.VirtualAddress)))
	default:
		utils.Fatal(fmt.Sprintf("%s: unsupported relocation type: %d",
			s.File.ShortName(), rel.Type))
	}
}

// Prints "Discarded <symbol> from <file>" for every external function
// symbol defined in this section.
func (s *SectionChunk) PrintDiscardMessage() {
	o := s.File
	for i := uint32(0); i < o.Hdr.NumberOfSymbols; {
		esym := o.SymbolRecord(i)
		if int32(esym.SectionNumber) == int32(s.SectionIndex) &&
			esym.IsFunctionDefinition() {
			fmt.Printf("Discarded %s from %s\n",
				o.SymbolName(esym), o.ShortName())
		}
		i += 1 + uint32(esym.NumberOfAuxSymbols)
	}
}

// CommonChunk represents storage for a common symbol. The symbol value
// of a common symbol is its size.
type CommonChunk struct {
	Chunk
	Sym *Sym
}

func NewCommonChunk(esym *Sym) *CommonChunk {
	return &CommonChunk{Chunk: NewChunk(), Sym: esym}
}

func (c *CommonChunk) Size() uint64 {
	return uint64(c.Sym.Value)
}

func (c *CommonChunk) HasData() bool {
	return false
}

func (c *CommonChunk) Permissions() uint32 {
	return IMAGE_SCN_CNT_UNINITIALIZED_DATA | IMAGE_SCN_MEM_READ |
		IMAGE_SCN_MEM_WRITE
}

func (c *CommonChunk) SectionName() string {
	return ".bss"
}
