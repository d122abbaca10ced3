package linker

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/ksco/wld/pkg/utils"
)

const ArHdrSize = 60

type ArHdr struct {
	Name [16]byte
	Date [12]byte
	Uid  [6]byte
	Gid  [6]byte
	Mode [8]byte
	Size [10]byte
	Fmag [2]byte
}

func (a *ArHdr) StartsWith(s string) bool {
	return string(a.Name[:len(s)]) == s
}

func (a *ArHdr) IsStrtab() bool {
	return a.StartsWith("// ")
}

func (a *ArHdr) IsSymtab() bool {
	return a.StartsWith("/ ")
}

func (a *ArHdr) ReadName(strTab []byte) string {
	// Long filename, an offset into the longnames member.
	if a.StartsWith("/") {
		start, err := strconv.Atoi(strings.TrimSpace(string(a.Name[1:])))
		utils.MustNo(err)
		end := start + bytes.IndexAny(strTab[start:], "\x00\n")
		return string(strTab[start:end])
	}

	// Short filename, terminated by "/".
	if end := bytes.Index(a.Name[:], []byte("/")); end != -1 {
		return string(a.Name[:end])
	}
	return string(a.Name[:])
}

func (a *ArHdr) GetSize() int {
	sz, err := strconv.Atoi(strings.TrimSpace(string(a.Size[:])))
	utils.MustNo(err)
	return sz
}
