package linker

import "github.com/ksco/wld/pkg/utils"

// ImportFile is a short-import member of an import library: one header
// describing a single symbol exported from a DLL.
type ImportFile struct {
	InputFile
}

func NewImportFile(file *File) *ImportFile {
	f := &ImportFile{InputFile: InputFile{File: file}}
	f.parse()
	return f
}

func (f *ImportFile) parse() {
	contents := f.File.Contents
	hdr := utils.Read[ImportHdr](contents)

	if len(contents) != ImportHeaderSize+int(hdr.SizeOfData) {
		utils.Fatal("broken import library: " + f.File.Name)
	}

	data := contents[ImportHeaderSize:]
	name := cstringAt(data)
	if len(name)+1 >= len(data) {
		utils.Fatal("broken import library: " + f.File.Name)
	}
	dllName := cstringAt(data[len(name)+1:])

	impSym := NewDefinedImportData(dllName, "__imp_"+name, name)
	f.Bodies = append(f.Bodies, impSym)

	if hdr.TypeInfo&0x3 == IMPORT_CODE {
		f.Bodies = append(f.Bodies, NewDefinedImportFunc(name, impSym))
	}
}
