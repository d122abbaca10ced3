package linker

// Symbol is the indirection cell for one name. The resolver swaps Body
// for the current best definition; every reference through a file's
// sparse vector observes the winner.
type Symbol struct {
	Name string
	Body SymbolBody
}

func GetSymbolByName(ctx *Context, name string) *Symbol {
	if sym, ok := ctx.SymbolMap[name]; ok {
		return sym
	}
	sym := &Symbol{Name: name}
	ctx.SymbolMap[name] = sym
	ctx.Symbols = append(ctx.Symbols, sym)
	return sym
}

type SymbolBody interface {
	Name() string
	IsExternal() bool
}

// Defined is any body with a concrete address in the image.
type Defined interface {
	SymbolBody
	RVA() uint64
	MarkLive()
}

// Undefined is an unresolved reference. Alias, when set, points at the
// slot of the weak-external fallback in the owning file's sparse body
// vector.
type Undefined struct {
	NameStr string
	Alias   *SymbolBody
}

func NewUndefined(name string) *Undefined {
	return &Undefined{NameStr: name}
}

func (u *Undefined) Name() string     { return u.NameStr }
func (u *Undefined) IsExternal() bool { return true }

func (u *Undefined) WeakAlias() SymbolBody {
	if u.Alias == nil {
		return nil
	}
	return *u.Alias
}

// DefinedAbsolute has a fixed address and no chunk.
type DefinedAbsolute struct {
	NameStr string
	Rva     uint64
}

func NewDefinedAbsolute(name string, va uint64, imageBase uint64) *DefinedAbsolute {
	return &DefinedAbsolute{NameStr: name, Rva: va - imageBase}
}

func (d *DefinedAbsolute) Name() string     { return d.NameStr }
func (d *DefinedAbsolute) IsExternal() bool { return true }
func (d *DefinedAbsolute) RVA() uint64      { return d.Rva }
func (d *DefinedAbsolute) MarkLive()        {}

// DefinedRegular is backed by a SectionChunk or a CommonChunk.
type DefinedRegular struct {
	File    *ObjectFile
	NameStr string
	Sym     *Sym
	Chunk   Chunker
}

func NewDefinedRegular(file *ObjectFile, name string, esym *Sym, chunk Chunker) *DefinedRegular {
	return &DefinedRegular{File: file, NameStr: name, Sym: esym, Chunk: chunk}
}

func (d *DefinedRegular) Name() string { return d.NameStr }

func (d *DefinedRegular) IsExternal() bool {
	return d.Sym.IsExternal() || d.Sym.IsWeakExternal()
}

func (d *DefinedRegular) IsCommon() bool {
	_, ok := d.Chunk.(*CommonChunk)
	return ok
}

func (d *DefinedRegular) IsCOMDAT() bool {
	if sc, ok := d.Chunk.(*SectionChunk); ok {
		return sc.IsCOMDAT()
	}
	return false
}

func (d *DefinedRegular) RVA() uint64 {
	// A common symbol's value is its size, not an offset.
	if d.IsCommon() {
		return d.Chunk.GetRVA()
	}
	return d.Chunk.GetRVA() + uint64(d.Sym.Value)
}

func (d *DefinedRegular) MarkLive() {
	d.Chunk.MarkLive()
}

// DefinedImportData is one entry of the import address table. Location
// is bound by the writer when the table is built.
type DefinedImportData struct {
	DLLName    string
	NameStr    string
	ExportName string
	Location   *LookupChunk
}

func NewDefinedImportData(dllName, impName, exportName string) *DefinedImportData {
	return &DefinedImportData{DLLName: dllName, NameStr: impName, ExportName: exportName}
}

func (d *DefinedImportData) Name() string     { return d.NameStr }
func (d *DefinedImportData) IsExternal() bool { return true }
func (d *DefinedImportData) RVA() uint64      { return d.Location.RVA }
func (d *DefinedImportData) MarkLive()        {}

// DefinedImportFunc is the callable name of a code import. It owns the
// jump thunk that indirects through the import address table.
type DefinedImportFunc struct {
	NameStr   string
	ImpSymbol *DefinedImportData
	Thunk     *ImportFuncChunk
}

func NewDefinedImportFunc(name string, imp *DefinedImportData) *DefinedImportFunc {
	return &DefinedImportFunc{
		NameStr:   name,
		ImpSymbol: imp,
		Thunk:     NewImportFuncChunk(imp),
	}
}

func (d *DefinedImportFunc) Name() string     { return d.NameStr }
func (d *DefinedImportFunc) IsExternal() bool { return true }
func (d *DefinedImportFunc) RVA() uint64      { return d.Thunk.RVA }
func (d *DefinedImportFunc) MarkLive()        {}

// CanBeDefined names an archive member that defines the symbol. The
// resolver materializes the member when an undefined reference meets it.
type CanBeDefined struct {
	File    *ArchiveFile
	NameStr string
	Offset  uint32
}

func NewCanBeDefined(file *ArchiveFile, name string, offset uint32) *CanBeDefined {
	return &CanBeDefined{File: file, NameStr: name, Offset: offset}
}

func (c *CanBeDefined) Name() string     { return c.NameStr }
func (c *CanBeDefined) IsExternal() bool { return true }
