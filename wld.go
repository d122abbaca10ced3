package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ksco/wld/pkg/linker"
	"github.com/ksco/wld/pkg/utils"
)

var version string

func main() {
	ctx := linker.NewContext()
	remaining := parseNonpositionalArgs(ctx)

	for _, filename := range remaining {
		if strings.HasPrefix(filename, "-") {
			continue
		}
		file := linker.MustNewFile(filename)
		if linker.GetFileType(file.Contents) == linker.FileTypeObject &&
			linker.GetMachineTypeFromContents(file.Contents) != linker.MachineTypeAMD64 {
			utils.Fatal("unsupported machine type: " + filename)
		}
	}

	linker.AddInitialSymbols(ctx)
	linker.ReadInputFiles(ctx, remaining)
	linker.ResolveSymbols(ctx)
	linker.MarkLive(ctx)

	writer := linker.NewWriter()
	writer.Write(ctx)

	file, err := os.OpenFile(ctx.Arg.Output,
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0777)
	utils.MustNo(err)

	_, err = file.Write(ctx.Buf)
	utils.MustNo(err)
	utils.MustNo(file.Close())
}

func parseNonpositionalArgs(ctx *linker.Context) []string {
	dashes := func(name string) []string {
		if len(name) == 1 {
			return []string{"-" + name}
		}
		if name[0] == 'o' {
			return []string{"--" + name}
		}
		return []string{"-" + name, "--" + name}
	}

	args := os.Args[1:]
	remaining := make([]string, 0)
	var arg string

	readArg := func(name string) bool {
		for _, opt := range dashes(name) {
			if args[0] == opt {
				if len(args) == 1 {
					utils.Fatal(fmt.Sprintf("option -%s: argument missing", name))
					return false
				}
				arg = args[1]
				args = args[2:]
				return true
			}

			prefix := opt
			if len(name) > 1 {
				prefix += "="
			}

			if strings.HasPrefix(args[0], prefix) {
				arg = args[0][len(prefix):]
				args = args[1:]
				return true
			}
		}
		return false
	}

	readFlag := func(name string) bool {
		for _, opt := range dashes(name) {
			if args[0] == opt {
				args = args[1:]
				return true
			}
		}
		return false
	}

	for len(args) > 0 {
		if readFlag("help") {
			fmt.Printf("Usage: %s [options] file...\n", os.Args[0])
			os.Exit(0)
		}

		if readArg("o") || readArg("output") {
			ctx.Arg.Output = arg
		} else if readFlag("version") {
			fmt.Printf("wld %s\n", version)
			os.Exit(0)
		} else if readFlag("v") || readFlag("verbose") {
			ctx.Arg.Verbose = true
		} else if readArg("entry") {
			ctx.Arg.EntryName = arg
		} else if readArg("image-base") {
			base, err := strconv.ParseUint(strings.TrimPrefix(arg, "0x"), 16, 64)
			if err != nil {
				utils.Fatal(fmt.Sprintf("invalid --image-base argument: %s", arg))
			}
			ctx.Arg.ImageBase = base
		} else if readArg("L") || readArg("library-path") {
			ctx.Arg.LibraryPaths = append(ctx.Arg.LibraryPaths, arg)
		} else if readArg("l") {
			remaining = append(remaining, "-l"+arg)
		} else {
			if args[0][0] == '-' {
				utils.Fatal(fmt.Sprintf("unknown command line option: %s", args[0]))
			}
			remaining = append(remaining, args[0])
			args = args[1:]
		}
	}

	for i, path := range ctx.Arg.LibraryPaths {
		ctx.Arg.LibraryPaths[i] = filepath.Clean(path)
	}

	return remaining
}
