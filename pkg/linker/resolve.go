package linker

import (
	"fmt"

	"github.com/ksco/wld/pkg/utils"
)

// The image base and the entry point are installed before any input is
// read, so the entry can be pulled out of an archive like any other
// undefined reference.
func AddInitialSymbols(ctx *Context) {
	resolveBody(ctx,
		NewDefinedAbsolute("__ImageBase", ctx.Arg.ImageBase, ctx.Arg.ImageBase))
	resolveBody(ctx, NewUndefined(ctx.Arg.EntryName))
}

func AddObjectFile(ctx *Context, obj *ObjectFile) {
	ctx.Objs = append(ctx.Objs, obj)

	for i, body := range obj.SparseBodies {
		if body == nil {
			continue
		}
		if body.IsExternal() {
			// Only externally-visible symbols take part in resolution.
			obj.SparseSymbols[i] = resolveBody(ctx, body)
		} else {
			obj.SparseSymbols[i] = &Symbol{Name: body.Name(), Body: body}
		}
	}

	if obj.Directives != "" {
		parseDirectives(ctx, obj.Directives)
	}
}

func AddArchiveFile(ctx *Context, file *ArchiveFile) {
	ctx.Archives = append(ctx.Archives, file)
	for _, body := range file.Bodies {
		resolveBody(ctx, body)
	}
}

func AddImportFile(ctx *Context, file *ImportFile) {
	ctx.Imports = append(ctx.Imports, file)
	for _, body := range file.Bodies {
		resolveBody(ctx, body)
	}
}

func isCOMDAT(body SymbolBody) bool {
	if d, ok := body.(*DefinedRegular); ok {
		return d.IsCOMDAT()
	}
	return false
}

// Elects the better of the incoming body and the current one. A body
// replaces the current one only with a strictly smaller rank; two
// strong definitions are a link error unless both are COMDAT.
func resolveBody(ctx *Context, body SymbolBody) *Symbol {
	sym := GetSymbolByName(ctx, body.Name())
	if sym.Body == nil {
		sym.Body = body
		return sym
	}

	existing := sym.Body
	newRank := GetRank(body)
	oldRank := GetRank(existing)

	switch {
	case newRank < oldRank:
		sym.Body = body
	case newRank == oldRank && newRank == RankDefined:
		if !(isCOMDAT(existing) && isCOMDAT(body)) {
			ctx.Errors = append(ctx.Errors, "duplicate symbol: "+sym.Name)
		}
	}

	// An undefined reference meeting a lazy archive symbol schedules
	// the member for materialization.
	if _, lazy := sym.Body.(*CanBeDefined); lazy {
		_, a := existing.(*Undefined)
		_, b := body.(*Undefined)
		if a || b {
			ctx.Pending = append(ctx.Pending, sym)
		}
	}
	return sym
}

// ResolveSymbols drains the pending worklist: each wanted archive
// member is materialized and its symbols re-added, which may schedule
// further members. Terminates when no Undefined -> CanBeDefined edge
// remains, then redirects weak externals and reports what is left.
func ResolveSymbols(ctx *Context) {
	for len(ctx.Pending) > 0 {
		sym := ctx.Pending[0]
		ctx.Pending = ctx.Pending[1:]

		lazy, ok := sym.Body.(*CanBeDefined)
		if !ok {
			continue
		}

		member := lazy.File.GetMember(lazy)
		if len(member.Contents) == 0 {
			// Already loaded; its definitions are on the way in.
			continue
		}

		if ctx.Arg.Verbose {
			in := InputFile{File: member}
			fmt.Printf("Loaded %s for %s\n", in.ShortName(), lazy.Name())
		}

		switch GetFileType(member.Contents) {
		case FileTypeObject:
			AddObjectFile(ctx, NewObjectFile(ctx, member))
		case FileTypeImport:
			AddImportFile(ctx, NewImportFile(member))
		default:
			utils.Fatal(fmt.Sprintf("%s: unknown archive member type",
				member.Name))
		}
	}

	claimWeakAliases(ctx)
	reportRemainingUndefines(ctx)
}

// An undefined symbol with a weak alias gets a second chance: it is
// replaced with whatever its alias resolved to.
func claimWeakAliases(ctx *Context) {
	for _, sym := range ctx.Symbols {
		und, ok := sym.Body.(*Undefined)
		if !ok {
			continue
		}
		alias := und.WeakAlias()
		if alias == nil {
			continue
		}

		if cell, ok := ctx.SymbolMap[alias.Name()]; ok {
			if _, defined := cell.Body.(Defined); defined {
				sym.Body = cell.Body
				continue
			}
		}
		if _, defined := alias.(Defined); defined {
			sym.Body = alias
		}
	}
}

func reportRemainingUndefines(ctx *Context) {
	for _, sym := range ctx.Symbols {
		if _, ok := sym.Body.(*Undefined); ok {
			ctx.Errors = append(ctx.Errors, "undefined symbol: "+sym.Name)
		}
	}

	ReportErrors(ctx)
}

// Collected symbol errors are printed together, then the link aborts.
func ReportErrors(ctx *Context) {
	if len(ctx.Errors) == 0 {
		return
	}
	for _, msg := range ctx.Errors {
		fmt.Println("wld: " + msg)
	}
	utils.Fatal(fmt.Sprintf("%d link error(s)", len(ctx.Errors)))
}
