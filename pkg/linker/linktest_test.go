package linker

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ksco/wld/pkg/utils"
)

// Builders for synthetic inputs. Tests construct COFF objects, archives
// and short-import members in memory and run the pass pipeline over
// them.

type testSection struct {
	name  string
	chars uint32
	data  []byte
	size  uint32 // used instead of len(data) for uninitialized sections
	rels  []Reloc
}

type testSymbol struct {
	name    string
	value   uint32
	section int16
	typ     uint16
	class   uint8
	aux     [][]byte
}

func auxSectionDef(number uint16, selection uint8) []byte {
	buf := make([]byte, SymSize)
	utils.Write[AuxSectionDefinition](buf, AuxSectionDefinition{
		Number:    number,
		Selection: selection,
	})
	return buf
}

func auxWeakExternal(tagIndex uint32) []byte {
	buf := make([]byte, SymSize)
	utils.Write[AuxWeakExternal](buf, AuxWeakExternal{TagIndex: tagIndex})
	return buf
}

func makeObject(secs []testSection, syms []testSymbol) []byte {
	numSyms := 0
	for _, s := range syms {
		numSyms += 1 + len(s.aux)
	}

	strTab := &bytes.Buffer{}
	strTab.Write([]byte{0, 0, 0, 0})
	addLongName := func(name string) uint32 {
		off := uint32(strTab.Len())
		strTab.WriteString(name)
		strTab.WriteByte(0)
		return off
	}

	off := FileHeaderSize + len(secs)*SectionHeaderSize
	dataOffs := make([]int, len(secs))
	relOffs := make([]int, len(secs))
	for i, s := range secs {
		if len(s.data) > 0 {
			dataOffs[i] = off
			off += len(s.data)
		}
		if len(s.rels) > 0 {
			relOffs[i] = off
			off += len(s.rels) * RelocSize
		}
	}
	symTabOff := off

	buf := make([]byte, symTabOff+numSyms*SymSize)
	utils.Write[FileHeader](buf, FileHeader{
		Machine:              0x8664,
		NumberOfSections:     uint16(len(secs)),
		PointerToSymbolTable: uint32(symTabOff),
		NumberOfSymbols:      uint32(numSyms),
	})

	for i, s := range secs {
		var hdr SectionHeader
		if len(s.name) <= 8 {
			copy(hdr.Name[:], s.name)
		} else {
			copy(hdr.Name[:], fmt.Sprintf("/%d", addLongName(s.name)))
		}
		hdr.SizeOfRawData = uint32(len(s.data))
		if s.size != 0 {
			hdr.SizeOfRawData = s.size
		}
		hdr.PointerToRawData = uint32(dataOffs[i])
		hdr.PointerToRelocations = uint32(relOffs[i])
		hdr.NumberOfRelocations = uint16(len(s.rels))
		hdr.Characteristics = s.chars
		utils.Write[SectionHeader](buf[FileHeaderSize+i*SectionHeaderSize:], hdr)

		copy(buf[dataOffs[i]:], s.data)
		for j, r := range s.rels {
			utils.Write[Reloc](buf[relOffs[i]+j*RelocSize:], r)
		}
	}

	idx := 0
	for _, s := range syms {
		var sym Sym
		if len(s.name) <= 8 {
			copy(sym.Name[:], s.name)
		} else {
			binary.LittleEndian.PutUint32(sym.Name[4:], addLongName(s.name))
		}
		sym.Value = s.value
		sym.SectionNumber = s.section
		sym.Type = s.typ
		sym.StorageClass = s.class
		sym.NumberOfAuxSymbols = uint8(len(s.aux))
		utils.Write[Sym](buf[symTabOff+idx*SymSize:], sym)
		idx++
		for _, aux := range s.aux {
			copy(buf[symTabOff+idx*SymSize:], aux)
			idx++
		}
	}

	st := strTab.Bytes()
	binary.LittleEndian.PutUint32(st, uint32(len(st)))
	return append(buf, st...)
}

type testMember struct {
	name string
	data []byte
}

type testArSym struct {
	name   string
	member int
}

func writeArHdr(out *bytes.Buffer, name string, size int) {
	fmt.Fprintf(out, "%-16s%-12s%-6s%-6s%-8s%-10d`\n", name, "0", "0", "0", "0", size)
}

func makeArchive(members []testMember, syms []testArSym) []byte {
	longNames := &bytes.Buffer{}
	nameFields := make([]string, len(members))
	for i, m := range members {
		if len(m.name) <= 15 {
			nameFields[i] = m.name + "/"
		} else {
			nameFields[i] = fmt.Sprintf("/%d", longNames.Len())
			longNames.WriteString(m.name)
			longNames.WriteByte(0)
		}
	}

	symTabSize := 4 + 4*len(syms)
	for _, s := range syms {
		symTabSize += len(s.name) + 1
	}

	pos := 8 + ArHdrSize + symTabSize
	pos += pos % 2
	if longNames.Len() > 0 {
		pos += ArHdrSize + longNames.Len()
		pos += pos % 2
	}
	memberOffs := make([]int, len(members))
	for i, m := range members {
		memberOffs[i] = pos
		pos += ArHdrSize + len(m.data)
		pos += pos % 2
	}

	out := &bytes.Buffer{}
	out.WriteString("!<arch>\n")

	writeArHdr(out, "/", symTabSize)
	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, uint32(len(syms)))
	out.Write(count)
	for _, s := range syms {
		off := make([]byte, 4)
		binary.BigEndian.PutUint32(off, uint32(memberOffs[s.member]))
		out.Write(off)
	}
	for _, s := range syms {
		out.WriteString(s.name)
		out.WriteByte(0)
	}
	if out.Len()%2 == 1 {
		out.WriteByte('\n')
	}

	if longNames.Len() > 0 {
		writeArHdr(out, "//", longNames.Len())
		out.Write(longNames.Bytes())
		if out.Len()%2 == 1 {
			out.WriteByte('\n')
		}
	}

	for i, m := range members {
		writeArHdr(out, nameFields[i], len(m.data))
		out.Write(m.data)
		if out.Len()%2 == 1 {
			out.WriteByte('\n')
		}
	}
	return out.Bytes()
}

func makeImportMember(sym, dll string, typeInfo uint16) []byte {
	data := sym + "\x00" + dll + "\x00"
	buf := make([]byte, ImportHeaderSize+len(data))
	utils.Write[ImportHdr](buf, ImportHdr{
		Sig2:       0xFFFF,
		Machine:    0x8664,
		SizeOfData: uint32(len(data)),
		TypeInfo:   typeInfo,
	})
	copy(buf[ImportHeaderSize:], data)
	return buf
}

func newTestContext(entry string) *Context {
	ctx := NewContext()
	ctx.Arg.EntryName = entry
	return ctx
}

func link(entry string, files ...*File) (*Context, *Writer) {
	ctx := newTestContext(entry)
	AddInitialSymbols(ctx)
	for _, f := range files {
		ReadFile(ctx, f)
	}
	ResolveSymbols(ctx)
	MarkLive(ctx)

	w := NewWriter()
	w.Write(ctx)
	return ctx, w
}

const testCodeChars = IMAGE_SCN_CNT_CODE | IMAGE_SCN_MEM_READ |
	IMAGE_SCN_MEM_EXECUTE

// IMAGE_SCN_ALIGN_16BYTES
const testAlign16 = uint32(5) << 20
