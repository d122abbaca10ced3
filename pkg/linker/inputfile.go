package linker

import "strings"

type InputFile struct {
	File   *File
	Bodies []SymbolBody
}

func basename(path string) string {
	if pos := strings.LastIndexAny(path, `/\`); pos != -1 {
		return path[pos+1:]
	}
	return path
}

// A short, human-friendly filename for diagnostics. Members of an
// archive include the parent's filename.
func (f *InputFile) ShortName() string {
	if f.File.Parent == nil {
		return strings.ToLower(f.File.Name)
	}
	return strings.ToLower(
		basename(f.File.Parent.Name) + "(" + basename(f.File.Name) + ")")
}
