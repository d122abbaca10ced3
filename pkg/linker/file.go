package linker

import (
	"os"
	"strings"

	"github.com/ksco/wld/pkg/utils"
)

type File struct {
	Name     string
	Contents []byte

	Parent *File
}

func MustNewFile(filename string) *File {
	contents, err := os.ReadFile(filename)
	utils.MustNo(err)
	return &File{
		Name:     filename,
		Contents: contents,
	}
}

func OpenLibrary(path string) *File {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	file := &File{Name: path, Contents: contents}
	ty := GetMachineTypeFromContents(file.Contents)
	if ty == MachineTypeNone || ty == MachineTypeAMD64 {
		return file
	}

	utils.Fatal("incompatible file: " + path)
	return nil
}

func FindLibrary(ctx *Context, name string) *File {
	if !strings.HasSuffix(strings.ToLower(name), ".lib") {
		name += ".lib"
	}

	if f := OpenLibrary(name); f != nil {
		return f
	}
	for _, dir := range ctx.Arg.LibraryPaths {
		if f := OpenLibrary(dir + "/" + name); f != nil {
			return f
		}
	}

	utils.Fatal("library not found: " + name)
	return nil
}
