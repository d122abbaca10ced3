package linker

import (
	"sort"

	"github.com/ksco/wld/pkg/utils"
)

// StringChunk holds a zero-terminated name (a DLL name in the import
// directory).
type StringChunk struct {
	Chunk
	Data []byte
}

func NewStringChunk(s string) *StringChunk {
	c := &StringChunk{Chunk: NewChunk()}
	c.Data = make([]byte, len(s)+1)
	copy(c.Data, s)
	return c
}

func (c *StringChunk) Size() uint64 {
	return uint64(len(c.Data))
}

func (c *StringChunk) CopyBuf(ctx *Context) {
	copy(ctx.Buf[c.FileOff:], c.Data)
}

// HintNameChunk is a two-byte hint (always zero here) followed by the
// zero-terminated symbol name, padded to an even size.
type HintNameChunk struct {
	Chunk
	Data []byte
}

func NewHintNameChunk(name string) *HintNameChunk {
	c := &HintNameChunk{Chunk: NewChunk()}
	c.Data = make([]byte, utils.AlignTo(uint64(len(name))+4, 2))
	copy(c.Data[2:], name)
	return c
}

func (c *HintNameChunk) Size() uint64 {
	return uint64(len(c.Data))
}

func (c *HintNameChunk) CopyBuf(ctx *Context) {
	copy(ctx.Buf[c.FileOff:], c.Data)
}

// LookupChunk is one 8-byte slot of the import lookup table or the
// import address table. At write time it holds the RVA of its hint-name
// entry.
type LookupChunk struct {
	Chunk
	HintName *HintNameChunk
}

func NewLookupChunk(h *HintNameChunk) *LookupChunk {
	return &LookupChunk{Chunk: NewChunk(), HintName: h}
}

func (c *LookupChunk) Size() uint64 {
	return 8
}

func (c *LookupChunk) ApplyRelocations(ctx *Context) {
	utils.Write[uint32](ctx.Buf[c.FileOff:], uint32(c.HintName.RVA))
}

// DirectoryChunk is one import directory table entry. Its RVA fields are
// patched from the chunks it references once addresses are known.
type DirectoryChunk struct {
	Chunk
	DLLName    *StringChunk
	LookupTab  *LookupChunk
	AddressTab *LookupChunk
}

func NewDirectoryChunk(name *StringChunk) *DirectoryChunk {
	return &DirectoryChunk{Chunk: NewChunk(), DLLName: name}
}

func (c *DirectoryChunk) Size() uint64 {
	return ImportDirEntSize
}

func (c *DirectoryChunk) ApplyRelocations(ctx *Context) {
	utils.Write[ImportDirectoryEntry](ctx.Buf[c.FileOff:], ImportDirectoryEntry{
		ImportLookupTableRVA:  uint32(c.LookupTab.RVA),
		NameRVA:               uint32(c.DLLName.RVA),
		ImportAddressTableRVA: uint32(c.AddressTab.RVA),
	})
}

// NullChunk terminates the directory table and each lookup table.
type NullChunk struct {
	Chunk
	Bytes uint64
}

func NewNullChunk(size uint64) *NullChunk {
	return &NullChunk{Chunk: NewChunk(), Bytes: size}
}

func (c *NullChunk) Size() uint64 {
	return c.Bytes
}

var importFuncData = []byte{0xff, 0x25, 0x00, 0x00, 0x00, 0x00} // JMP [rip+disp32]

// ImportFuncChunk is the jump thunk through an import address table
// slot. The 32-bit displacement is patched at write time.
type ImportFuncChunk struct {
	Chunk
	ImpSymbol *DefinedImportData
}

func NewImportFuncChunk(imp *DefinedImportData) *ImportFuncChunk {
	return &ImportFuncChunk{Chunk: NewChunk(), ImpSymbol: imp}
}

func (c *ImportFuncChunk) Size() uint64 {
	return uint64(len(importFuncData))
}

func (c *ImportFuncChunk) CopyBuf(ctx *Context) {
	copy(ctx.Buf[c.FileOff:], importFuncData)
}

func (c *ImportFuncChunk) ApplyRelocations(ctx *Context) {
	operand := uint32(c.ImpSymbol.RVA() - c.RVA - c.Size())
	utils.Write[uint32](ctx.Buf[c.FileOff+2:], operand)
}

// ImportTable builds the chunk graph for one DLL: the DLL name, the
// directory entry, one hint-name entry per symbol and the parallel
// lookup/address tables. Each DefinedImportData is bound to its address
// table slot.
type ImportTable struct {
	DLLName        *StringChunk
	DirTab         *DirectoryChunk
	LookupTables   []*LookupChunk
	AddressTables  []*LookupChunk
	HintNameTables []*HintNameChunk
}

func NewImportTable(dllName string, syms []*DefinedImportData) *ImportTable {
	t := &ImportTable{}
	t.DLLName = NewStringChunk(dllName)
	t.DirTab = NewDirectoryChunk(t.DLLName)

	for _, sym := range syms {
		t.HintNameTables = append(t.HintNameTables,
			NewHintNameChunk(sym.ExportName))
	}
	for _, h := range t.HintNameTables {
		t.LookupTables = append(t.LookupTables, NewLookupChunk(h))
		t.AddressTables = append(t.AddressTables, NewLookupChunk(h))
	}
	for i, sym := range syms {
		sym.Location = t.AddressTables[i]
	}

	t.DirTab.LookupTab = t.LookupTables[0]
	t.DirTab.AddressTab = t.AddressTables[0]
	return t
}

// Groups import symbols by DLL, sorted by DLL name, symbols sorted by
// name within each group.
func binImports(ctx *Context) ([]string, map[string][]*DefinedImportData) {
	groups := make(map[string][]*DefinedImportData)
	for _, file := range ctx.Imports {
		for _, body := range file.Bodies {
			if sym, ok := body.(*DefinedImportData); ok {
				groups[sym.DLLName] = append(groups[sym.DLLName], sym)
			}
		}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		syms := groups[name]
		sort.SliceStable(syms, func(i, j int) bool {
			return syms[i].Name() < syms[j].Name()
		})
	}
	return names, groups
}
