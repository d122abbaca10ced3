package linker

import "github.com/ksco/wld/pkg/utils"

type ContextArg struct {
	Output    string
	EntryName string
	ImageBase uint64
	Verbose   bool

	LibraryPaths []string
}

type Context struct {
	Arg ContextArg

	SymbolMap map[string]*Symbol

	// Symbols in insertion order, which is file order then symbol order
	// within a file. Diagnostics iterate this instead of the map.
	Symbols []*Symbol

	Objs     []*ObjectFile
	Archives []*ArchiveFile
	Imports  []*ImportFile

	// Symbol cells waiting for an archive member to be materialized.
	Pending []*Symbol

	// Collected link errors (duplicate and unresolved symbols),
	// reported together before aborting.
	Errors []string

	Visited utils.MapSet[string]

	Buf []byte
}

func NewContext() *Context {
	return &Context{
		Arg: ContextArg{
			Output:    "a.exe",
			EntryName: "mainCRTStartup",
			ImageBase: DefaultImageBase,
		},
		SymbolMap: make(map[string]*Symbol),
		Visited:   utils.NewMapSet[string](),
	}
}

// All chunks owned by object files, in file order. Index 0 of each
// object's chunk array is unused and skipped.
func (ctx *Context) GetChunks() []Chunker {
	chunks := make([]Chunker, 0)
	for _, file := range ctx.Objs {
		for _, chunk := range file.Chunks {
			if chunk != nil {
				chunks = append(chunks, chunk)
			}
		}
	}
	return chunks
}
