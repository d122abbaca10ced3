package linker

import (
	"debug/pe"

	"github.com/ksco/wld/pkg/utils"
)

type MachineType = int8

const (
	MachineTypeNone  MachineType = iota
	MachineTypeAMD64 MachineType = iota
)

func GetMachineTypeFromContents(contents []byte) MachineType {
	switch GetFileType(contents) {
	case FileTypeObject:
		machine := utils.Read[FileHeader](contents).Machine
		if machine == uint16(pe.IMAGE_FILE_MACHINE_AMD64) {
			return MachineTypeAMD64
		}
	case FileTypeImport:
		machine := utils.Read[ImportHdr](contents).Machine
		if machine == uint16(pe.IMAGE_FILE_MACHINE_AMD64) {
			return MachineTypeAMD64
		}
	}

	return MachineTypeNone
}

func CheckFileCompatibility(ctx *Context, file *File) {
	mt := GetMachineTypeFromContents(file.Contents)
	if mt != MachineTypeAMD64 {
		utils.Fatal("incompatible file type: " + file.Name)
	}
}
