package linker

import (
	"fmt"
	"strings"

	"github.com/ksco/wld/pkg/utils"
)

type ObjectFile struct {
	InputFile
	Hdr         FileHeader
	SectionHdrs []SectionHeader
	StringTab   []byte

	// Chunks is 1-based so a COFF SectionNumber indexes it directly;
	// index 0 is unused. Common chunks are appended past the sections.
	Chunks []Chunker

	Syms []Sym

	// Bodies indexed by symbol-table index; slots occupied by auxiliary
	// records (and skipped symbols) are nil.
	SparseBodies []SymbolBody

	// Symbol cells for the same indices, filled by the resolver.
	// Relocations resolve through these to find the current winner.
	SparseSymbols []*Symbol

	Directives string
}

func NewObjectFile(ctx *Context, file *File) *ObjectFile {
	o := &ObjectFile{InputFile: InputFile{File: file}}
	o.parse(ctx)
	return o
}

func (o *ObjectFile) parse(ctx *Context) {
	contents := o.File.Contents
	if len(contents) < FileHeaderSize {
		utils.Fatal("broken object file: " + o.File.Name)
	}
	o.Hdr = utils.Read[FileHeader](contents)

	symTabEnd := uint64(o.Hdr.PointerToSymbolTable) +
		uint64(o.Hdr.NumberOfSymbols)*SymSize
	if o.Hdr.NumberOfSymbols > 0 && symTabEnd > uint64(len(contents)) {
		utils.Fatal("broken object file: " + o.File.Name)
	}

	// The string table immediately follows the symbol table. Its first
	// four bytes hold its total size.
	if symTabEnd+4 <= uint64(len(contents)) {
		size := uint64(utils.Read[uint32](contents[symTabEnd:]))
		if size >= 4 && symTabEnd+size <= uint64(len(contents)) {
			o.StringTab = contents[symTabEnd : symTabEnd+size]
		}
	}

	secOff := uint64(FileHeaderSize) + uint64(o.Hdr.SizeOfOptionalHeader)
	if secOff+uint64(o.Hdr.NumberOfSections)*SectionHeaderSize > uint64(len(contents)) {
		utils.Fatal("broken object file: " + o.File.Name)
	}
	o.SectionHdrs = make([]SectionHeader, o.Hdr.NumberOfSections)
	for i := 0; i < int(o.Hdr.NumberOfSections); i++ {
		o.SectionHdrs[i] =
			utils.Read[SectionHeader](contents[secOff+uint64(i)*SectionHeaderSize:])
	}

	o.initializeChunks(ctx)
	o.initializeSymbols(ctx)
}

func (o *ObjectFile) initializeChunks(ctx *Context) {
	o.Chunks = make([]Chunker, len(o.SectionHdrs)+1)
	for i := 1; i <= len(o.SectionHdrs); i++ {
		hdr := &o.SectionHdrs[i-1]
		name := sectionName(hdr.Name, o.StringTab)

		if name == ".drectve" {
			end := uint64(hdr.PointerToRawData) + uint64(hdr.SizeOfRawData)
			if end <= uint64(len(o.File.Contents)) {
				data := o.File.Contents[hdr.PointerToRawData:end]
				o.Directives = strings.Trim(string(data), "\x00 \t\r\n")
			}
			continue
		}
		if strings.HasPrefix(name, ".debug") {
			continue
		}
		if hdr.Characteristics&IMAGE_SCN_LNK_REMOVE != 0 {
			continue
		}

		o.Chunks[i] = NewSectionChunk(o, hdr, uint32(i))
	}
}

func (o *ObjectFile) initializeSymbols(ctx *Context) {
	n := o.Hdr.NumberOfSymbols
	if n == 0 {
		return
	}
	raw := o.File.Contents[o.Hdr.PointerToSymbolTable:]

	o.Syms = make([]Sym, n)
	for i := uint32(0); i < n; i++ {
		o.Syms[i] = utils.Read[Sym](raw[i*SymSize:])
	}

	o.SparseBodies = make([]SymbolBody, n)
	o.SparseSymbols = make([]*Symbol, n)

	lastSectionNumber := int16(0)
	for i := uint32(0); i < n; {
		esym := &o.Syms[i]
		name := o.SymbolName(esym)

		if name == "@comp.id" || name == "@feat.00" {
			i += 1 + uint32(esym.NumberOfAuxSymbols)
			continue
		}

		var body SymbolBody
		switch {
		case esym.IsUndef():
			body = NewUndefined(name)

		case esym.IsCommon():
			chunk := NewCommonChunk(esym)
			o.Chunks = append(o.Chunks, chunk)
			body = NewDefinedRegular(o, name, esym, chunk)

		case esym.IsAbs():
			body = NewDefinedAbsolute(name, uint64(esym.Value), ctx.Arg.ImageBase)

		case esym.IsWeakExternal():
			und := NewUndefined(name)
			if esym.NumberOfAuxSymbols > 0 && i+1 < n {
				aux := utils.Read[AuxWeakExternal](raw[(i+1)*SymSize:])
				if aux.TagIndex < n {
					und.Alias = &o.SparseBodies[aux.TagIndex]
				}
			}
			body = und

		default:
			secNum := int(esym.SectionNumber)
			if secNum <= 0 {
				// Debug records such as .file carry no section.
				break
			}
			if secNum >= len(o.Chunks) {
				utils.Fatal(fmt.Sprintf("%s: invalid section number: %d",
					o.File.Name, secNum))
			}

			// The first symbol of a section may carry a section
			// definition naming the COMDAT-associative parent.
			isFirst := lastSectionNumber != esym.SectionNumber
			if isFirst && esym.NumberOfAuxSymbols > 0 && i+1 < n {
				if chunk, ok := o.Chunks[secNum].(*SectionChunk); ok {
					aux := utils.Read[AuxSectionDefinition](raw[(i+1)*SymSize:])
					parentNum := int(aux.Number)
					if parentNum != 0 && parentNum != secNum &&
						parentNum < len(o.Chunks) {
						if parent, ok := o.Chunks[parentNum].(*SectionChunk); ok {
							parent.AddAssociative(chunk)
						}
					}
				}
			}

			if chunk := o.Chunks[secNum]; chunk != nil {
				body = NewDefinedRegular(o, name, esym, chunk)
			}
		}

		if body != nil {
			o.SparseBodies[i] = body
			o.Bodies = append(o.Bodies, body)
		}
		lastSectionNumber = esym.SectionNumber
		i += 1 + uint32(esym.NumberOfAuxSymbols)
	}
}

func (o *ObjectFile) SymbolRecord(idx uint32) *Sym {
	utils.Assert(idx < uint32(len(o.Syms)))
	return &o.Syms[idx]
}

func (o *ObjectFile) SymbolName(esym *Sym) string {
	return symbolName(esym.Name, o.StringTab)
}

// The current winner for the idx'th symbol of this file, after
// resolution.
func (o *ObjectFile) ResolveSymbol(idx uint32) SymbolBody {
	utils.Assert(idx < uint32(len(o.SparseSymbols)))
	if cell := o.SparseSymbols[idx]; cell != nil && cell.Body != nil {
		return cell.Body
	}
	if body := o.SparseBodies[idx]; body != nil {
		return body
	}

	utils.Fatal(fmt.Sprintf("%s: relocation against a non-symbol", o.File.Name))
	return nil
}

func (o *ObjectFile) readRelocations(hdr *SectionHeader) []Reloc {
	if hdr.NumberOfRelocations == 0 {
		return nil
	}

	end := uint64(hdr.PointerToRelocations) +
		uint64(hdr.NumberOfRelocations)*RelocSize
	if end > uint64(len(o.File.Contents)) {
		utils.Fatal("broken object file: " + o.File.Name)
	}

	rels := make([]Reloc, hdr.NumberOfRelocations)
	bs := o.File.Contents[hdr.PointerToRelocations:]
	for i := range rels {
		rels[i] = utils.Read[Reloc](bs[i*RelocSize:])
	}
	return rels
}
