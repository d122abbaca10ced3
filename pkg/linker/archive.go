package linker

import (
	"bytes"
	"encoding/binary"

	"github.com/ksco/wld/pkg/utils"
)

type ArchiveSymbol struct {
	Name   string
	Offset uint32
}

type ArchiveFile struct {
	InputFile
	Symbols []ArchiveSymbol
	StrTab  []byte

	// Member start offsets already materialized, so the same member is
	// never pulled in twice.
	Seen utils.MapSet[uint32]
}

func NewArchiveFile(file *File) *ArchiveFile {
	a := &ArchiveFile{
		InputFile: InputFile{File: file},
		Seen:      utils.NewMapSet[uint32](),
	}
	a.parse()

	for _, sym := range a.Symbols {
		if sym.Name == "__NULL_IMPORT_DESCRIPTOR" {
			continue
		}
		a.Bodies = append(a.Bodies, NewCanBeDefined(a, sym.Name, sym.Offset))
	}
	return a
}

// Walks the members once, picking up the symbol index (the first linker
// member) and the longnames table.
func (a *ArchiveFile) parse() {
	contents := a.File.Contents
	data := 8
	var symTab []byte

	for len(contents)-data >= ArHdrSize {
		if data%2 == 1 {
			data++
		}

		hdr := &ArHdr{}
		err := binary.Read(bytes.NewBuffer(contents[data:]), binary.LittleEndian, hdr)
		utils.MustNo(err)
		body := data + ArHdrSize
		data = body + hdr.GetSize()
		if data > len(contents) {
			utils.Fatal("broken archive: " + a.File.Name)
		}

		if hdr.IsSymtab() {
			if symTab == nil {
				symTab = contents[body:data]
			}
			continue
		}
		if hdr.IsStrtab() {
			a.StrTab = contents[body:data]
			continue
		}
	}

	if symTab != nil {
		a.parseSymtab(symTab)
	}
}

// The first linker member: a big-endian count, the member offset of each
// symbol, then the zero-terminated symbol names.
func (a *ArchiveFile) parseSymtab(symTab []byte) {
	if len(symTab) < 4 {
		utils.Fatal("broken archive: " + a.File.Name)
	}
	count := binary.BigEndian.Uint32(symTab)
	if uint64(len(symTab)) < 4+uint64(count)*4 {
		utils.Fatal("broken archive: " + a.File.Name)
	}

	names := symTab[4+count*4:]
	for i := uint32(0); i < count; i++ {
		offset := binary.BigEndian.Uint32(symTab[4+i*4:])
		end := bytes.IndexByte(names, 0)
		if end < 0 {
			utils.Fatal("broken archive: " + a.File.Name)
		}
		a.Symbols = append(a.Symbols, ArchiveSymbol{
			Name:   string(names[:end]),
			Offset: offset,
		})
		names = names[end+1:]
	}
}

// Returns the member's buffer, or an empty buffer if the member was
// already returned once. The resolver treats an empty buffer as
// "already loaded, nothing new".
func (a *ArchiveFile) GetMember(sym *CanBeDefined) *File {
	if a.Seen.Contains(sym.Offset) {
		return &File{Parent: a.File}
	}
	a.Seen.Add(sym.Offset)

	contents := a.File.Contents
	if uint64(sym.Offset)+ArHdrSize > uint64(len(contents)) {
		utils.Fatal("broken archive: " + a.File.Name)
	}

	hdr := &ArHdr{}
	err := binary.Read(bytes.NewBuffer(contents[sym.Offset:]), binary.LittleEndian, hdr)
	utils.MustNo(err)

	body := int(sym.Offset) + ArHdrSize
	end := body + hdr.GetSize()
	if end > len(contents) {
		utils.Fatal("broken archive: " + a.File.Name)
	}

	return &File{
		Name:     hdr.ReadName(a.StrTab),
		Contents: contents[body:end],
		Parent:   a.File,
	}
}
