package linker

import (
	"debug/pe"
	"sort"
	"strings"

	"github.com/ksco/wld/pkg/utils"
)

type Writer struct {
	OutputSections []*OutputSection

	ImportAddressTable     Chunker
	ImportAddressTableSize uint32

	SizeOfImage uint64
	FileSize    uint64

	peHdr OptionalHeader64
}

const optHdrOff = DosStubSize + 4 + FileHeaderSize
const dataDirOff = optHdrOff + OptionalHeader64Size

func NewWriter() *Writer {
	return &Writer{}
}

// Write lays the live chunks out into ctx.Buf. The caller commits the
// buffer to disk only after this returns, so a failed link never leaves
// a partial image.
func (w *Writer) Write(ctx *Context) {
	w.createSections(ctx)
	w.createImportTables(ctx)
	w.removeEmptySections()
	w.assignAddresses()

	ctx.Buf = make([]byte, w.FileSize)
	w.writeHeader(ctx)
	w.writeSections(ctx)
	w.applyRelocations(ctx)
	w.backfillHeaders(ctx)
}

func dropDollar(name string) string {
	if i := strings.Index(name, "$"); i != -1 {
		return name[:i]
	}
	return name
}

// Live chunks coalesce into output sections keyed by the input name
// with its $suffix stripped. Within a section, chunks are ordered by
// their full input name, object order breaking ties.
func (w *Writer) createSections(ctx *Context) {
	groups := make(map[string][]Chunker)
	for _, c := range ctx.GetChunks() {
		if !c.IsLive() {
			if ctx.Arg.Verbose {
				c.PrintDiscardMessage()
			}
			continue
		}
		name := dropDollar(c.SectionName())
		groups[name] = append(groups[name], c)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		chunks := groups[name]
		sort.SliceStable(chunks, func(i, j int) bool {
			return chunks[i].SectionName() < chunks[j].SectionName()
		})

		sec := NewOutputSection(name, uint32(len(w.OutputSections)))
		for _, c := range chunks {
			c.SetOutputSection(sec)
			sec.AddChunk(c)
			sec.AddPermissions(c.Permissions())
		}
		w.OutputSections = append(w.OutputSections, sec)
	}
}

func (w *Writer) findSection(name string) *OutputSection {
	for _, sec := range w.OutputSections {
		if sec.Name == name {
			return sec
		}
	}
	return nil
}

func (w *Writer) createSection(name string) *OutputSection {
	if sec := w.findSection(name); sec != nil {
		return sec
	}

	var perm uint32
	switch name {
	case ".bss":
		perm = IMAGE_SCN_CNT_UNINITIALIZED_DATA | IMAGE_SCN_MEM_READ |
			IMAGE_SCN_MEM_WRITE
	case ".data":
		perm = IMAGE_SCN_CNT_INITIALIZED_DATA | IMAGE_SCN_MEM_READ |
			IMAGE_SCN_MEM_WRITE
	case ".idata", ".rdata":
		perm = IMAGE_SCN_CNT_INITIALIZED_DATA | IMAGE_SCN_MEM_READ
	case ".text":
		perm = IMAGE_SCN_CNT_CODE | IMAGE_SCN_MEM_READ | IMAGE_SCN_MEM_EXECUTE
	default:
		utils.Fatal("unknown section name: " + name)
	}

	sec := NewOutputSection(name, uint32(len(w.OutputSections)))
	sec.AddPermissions(perm)
	w.OutputSections = append(w.OutputSections, sec)
	return sec
}

// Builds the .idata chunk graph: directory entries first, then the
// lookup tables, the address tables, the hint-name entries and the DLL
// names, each table with its zero terminator. Jump thunks for code
// imports land in .text.
func (w *Writer) createImportTables(ctx *Context) {
	if len(ctx.Imports) == 0 {
		return
	}

	dllNames, groups := binImports(ctx)
	tabs := make([]*ImportTable, 0, len(dllNames))
	for _, name := range dllNames {
		tabs = append(tabs, NewImportTable(name, groups[name]))
	}

	text := w.createSection(".text")
	for _, file := range ctx.Imports {
		for _, body := range file.Bodies {
			if f, ok := body.(*DefinedImportFunc); ok {
				f.Thunk.SetOutputSection(text)
				text.AddChunk(f.Thunk)
			}
		}
	}

	idata := w.createSection(".idata")
	add := func(c Chunker) {
		c.SetOutputSection(idata)
		idata.AddChunk(c)
	}

	for _, t := range tabs {
		add(t.DirTab)
	}
	add(NewNullChunk(ImportDirEntSize))

	for _, t := range tabs {
		for _, c := range t.LookupTables {
			add(c)
		}
		add(NewNullChunk(8))
	}

	for _, t := range tabs {
		for _, c := range t.AddressTables {
			add(c)
		}
		add(NewNullChunk(8))
		w.ImportAddressTableSize += uint32(len(t.AddressTables)+1) * 8
	}
	w.ImportAddressTable = tabs[0].AddressTables[0]

	for _, t := range tabs {
		for _, c := range t.HintNameTables {
			add(c)
		}
	}
	for _, t := range tabs {
		add(t.DLLName)
	}
}

func (w *Writer) removeEmptySections() {
	w.OutputSections = utils.RemoveIf(w.OutputSections,
		func(sec *OutputSection) bool {
			return sec.Hdr.VirtualSize == 0
		})
	for i, sec := range w.OutputSections {
		sec.SectionIndex = uint32(i)
	}
}

// Sections are paged at RVA 0x1000; raw data starts at the page-aligned
// end of the section table.
func (w *Writer) assignAddresses() {
	headerEnd := utils.AlignTo(
		HeaderSize+SectionHeaderSize*uint64(len(w.OutputSections)), PageSize)

	rva := uint64(0x1000)
	fileOff := headerEnd
	for _, sec := range w.OutputSections {
		sec.SetRVA(rva)
		sec.SetFileOffset(fileOff)
		rva += utils.AlignTo(uint64(sec.Hdr.VirtualSize), PageSize)
		fileOff += utils.AlignTo(uint64(sec.Hdr.SizeOfRawData), FileAlignment)
	}

	w.SizeOfImage = headerEnd + (rva - 0x1000)
	w.FileSize = fileOff
}

func (w *Writer) entryRVA(ctx *Context) uint64 {
	if sym, ok := ctx.SymbolMap[ctx.Arg.EntryName]; ok {
		if defined, ok := sym.Body.(Defined); ok {
			return defined.RVA()
		}
	}
	return 0
}

func (w *Writer) writeHeader(ctx *Context) {
	buf := ctx.Buf
	numSections := len(w.OutputSections)

	dos := DosHeader{}
	dos.Magic = [2]byte{'M', 'Z'}
	dos.AddressOfRelocationTable = DosStubSize
	dos.AddressOfNewExeHeader = DosStubSize
	utils.Write[DosHeader](buf, dos)

	copy(buf[DosStubSize:], PEMagic)

	coff := FileHeader{}
	coff.Machine = uint16(pe.IMAGE_FILE_MACHINE_AMD64)
	coff.NumberOfSections = uint16(numSections)
	coff.SizeOfOptionalHeader = OptionalHeader64Size +
		NumDataDirectories*DataDirectorySize
	coff.Characteristics = pe.IMAGE_FILE_EXECUTABLE_IMAGE |
		pe.IMAGE_FILE_RELOCS_STRIPPED | pe.IMAGE_FILE_LARGE_ADDRESS_AWARE
	utils.Write[FileHeader](buf[DosStubSize+4:], coff)

	hdr := &w.peHdr
	hdr.Magic = PE32PlusMagic
	hdr.AddressOfEntryPoint = uint32(w.entryRVA(ctx))
	hdr.ImageBase = ctx.Arg.ImageBase
	hdr.SectionAlignment = SectionAlignment
	hdr.FileAlignment = FileAlignment
	hdr.MajorOperatingSystemVersion = 6
	hdr.MajorSubsystemVersion = 6
	hdr.Subsystem = pe.IMAGE_SUBSYSTEM_WINDOWS_CUI
	hdr.SizeOfImage = uint32(w.SizeOfImage)
	hdr.SizeOfHeaders = uint32(utils.AlignTo(
		HeaderSize+SectionHeaderSize*uint64(numSections), FileAlignment))
	hdr.SizeOfStackReserve = 1024 * 1024
	hdr.SizeOfStackCommit = 4096
	hdr.SizeOfHeapReserve = 1024 * 1024
	hdr.SizeOfHeapCommit = 4096
	hdr.NumberOfRvaAndSize = NumDataDirectories
	utils.Write[OptionalHeader64](buf[optHdrOff:], *hdr)

	if idata := w.findSection(".idata"); idata != nil {
		importDir := DataDirectory{
			RelativeVirtualAddress: idata.Hdr.VirtualAddress,
			Size:                   idata.Hdr.VirtualSize,
		}
		utils.Write[DataDirectory](
			buf[dataDirOff+pe.IMAGE_DIRECTORY_ENTRY_IMPORT*DataDirectorySize:],
			importDir)

		iatDir := DataDirectory{
			RelativeVirtualAddress: uint32(w.ImportAddressTable.GetRVA()),
			Size:                   w.ImportAddressTableSize,
		}
		utils.Write[DataDirectory](
			buf[dataDirOff+pe.IMAGE_DIRECTORY_ENTRY_IAT*DataDirectorySize:],
			iatDir)
	}

	for i, sec := range w.OutputSections {
		utils.Write[SectionHeader](
			buf[HeaderSize+uint64(i)*SectionHeaderSize:], sec.GetHeader())
	}
}

func (w *Writer) writeSections(ctx *Context) {
	for _, sec := range w.OutputSections {
		if sec.Hdr.Characteristics&IMAGE_SCN_CNT_CODE != 0 {
			start := uint64(sec.Hdr.PointerToRawData)
			for i := uint64(0); i < uint64(sec.Hdr.SizeOfRawData); i++ {
				ctx.Buf[start+i] = 0xCC
			}
		}
		for _, c := range sec.Chunks {
			if c.HasData() {
				c.CopyBuf(ctx)
			}
		}
	}
}

func (w *Writer) applyRelocations(ctx *Context) {
	for _, sec := range w.OutputSections {
		for _, c := range sec.Chunks {
			c.ApplyRelocations(ctx)
		}
	}
}

func (w *Writer) totalSectionSize(perm uint32) uint32 {
	total := uint32(0)
	for _, sec := range w.OutputSections {
		if sec.Hdr.Characteristics&perm != 0 {
			total += sec.Hdr.SizeOfRawData
		}
	}
	return total
}

// Fields that depend on the final section contents are filled in after
// everything else has been written.
func (w *Writer) backfillHeaders(ctx *Context) {
	if text := w.findSection(".text"); text != nil {
		w.peHdr.SizeOfCode = text.Hdr.SizeOfRawData
		w.peHdr.BaseOfCode = text.Hdr.VirtualAddress
	}
	w.peHdr.SizeOfInitializedData =
		w.totalSectionSize(IMAGE_SCN_CNT_INITIALIZED_DATA)
	w.peHdr.SizeOfUninitializedData =
		w.totalSectionSize(IMAGE_SCN_CNT_UNINITIALIZED_DATA)

	utils.Write[OptionalHeader64](ctx.Buf[optHdrOff:], w.peHdr)
}
