package linker

import (
	"strings"

	"github.com/ksco/wld/pkg/utils"
)

func ReadInputFiles(ctx *Context, args []string) {
	for _, arg := range args {
		var ok bool
		if arg, ok = utils.RemovePrefix(arg, "-l"); ok {
			ReadFile(ctx, FindLibrary(ctx, arg))
		} else {
			ReadFile(ctx, MustNewFile(arg))
		}
	}

	if len(ctx.Objs) == 0 {
		utils.Fatal("no input files")
	}
}

func ReadFile(ctx *Context, file *File) {
	if ctx.Visited.Contains(file.Name) {
		return
	}

	switch GetFileType(file.Contents) {
	case FileTypeObject:
		CheckFileCompatibility(ctx, file)
		AddObjectFile(ctx, NewObjectFile(ctx, file))
	case FileTypeAr:
		ctx.Visited.Add(file.Name)
		AddArchiveFile(ctx, NewArchiveFile(file))
	case FileTypeImport:
		AddImportFile(ctx, NewImportFile(file))
	default:
		utils.Fatal("unknown file type: " + file.Name)
	}
}

// .drectve sections carry linker options embedded by the compiler. Only
// /defaultlib is honored here; everything else is left to the driver.
func parseDirectives(ctx *Context, directives string) {
	for _, tok := range strings.Fields(directives) {
		lower := strings.ToLower(tok)
		for _, prefix := range []string{"/defaultlib:", "-defaultlib:"} {
			if strings.HasPrefix(lower, prefix) {
				name := strings.Trim(tok[len(prefix):], `"`)
				ReadFile(ctx, FindLibrary(ctx, name))
			}
		}
	}
}
