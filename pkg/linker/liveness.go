package linker

// Marks the transitive closure of the root set. Roots are the entry
// symbol's chunk and every section that is neither COMDAT, an
// associative child, nor code. Everything unmarked is discarded by the
// writer.
func MarkLive(ctx *Context) {
	if sym, ok := ctx.SymbolMap[ctx.Arg.EntryName]; ok {
		if defined, ok := sym.Body.(Defined); ok {
			defined.MarkLive()
		}
	}

	for _, chunk := range ctx.GetChunks() {
		if chunk.IsRoot() {
			chunk.MarkLive()
		}
	}
}
