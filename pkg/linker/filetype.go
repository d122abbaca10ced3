package linker

import "bytes"

type FileType = int8

const (
	FileTypeUnknown FileType = iota
	FileTypeEmpty   FileType = iota
	FileTypeObject  FileType = iota
	FileTypeImport  FileType = iota
	FileTypeAr      FileType = iota
)

func GetFileType(contents []byte) FileType {
	if len(contents) == 0 {
		return FileTypeEmpty
	}

	if bytes.HasPrefix(contents, []byte("!<arch>\n")) {
		return FileTypeAr
	}
	if IsImportHeader(contents) {
		return FileTypeImport
	}
	if IsCoffObject(contents) {
		return FileTypeObject
	}

	return FileTypeUnknown
}
