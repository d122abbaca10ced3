package linker

import "testing"

func TestImportFileCode(t *testing.T) {
	contents := makeImportMember("MessageBoxA", "user32.dll", IMPORT_CODE)
	f := NewImportFile(&File{Name: "user32.lib(user32.dll)", Contents: contents})

	if len(f.Bodies) != 2 {
		t.Fatalf("len(Bodies) = %d, want 2", len(f.Bodies))
	}

	imp, ok := f.Bodies[0].(*DefinedImportData)
	if !ok {
		t.Fatalf("Bodies[0] is %T", f.Bodies[0])
	}
	if imp.Name() != "__imp_MessageBoxA" || imp.ExportName != "MessageBoxA" ||
		imp.DLLName != "user32.dll" {
		t.Errorf("bad import data: %q %q %q",
			imp.Name(), imp.ExportName, imp.DLLName)
	}

	fn, ok := f.Bodies[1].(*DefinedImportFunc)
	if !ok {
		t.Fatalf("Bodies[1] is %T", f.Bodies[1])
	}
	if fn.Name() != "MessageBoxA" || fn.ImpSymbol != imp || fn.Thunk == nil {
		t.Errorf("bad import func")
	}
}

func TestImportFileData(t *testing.T) {
	contents := makeImportMember("_environ", "msvcrt.dll", IMPORT_DATA)
	f := NewImportFile(&File{Name: "msvcrt.lib(msvcrt.dll)", Contents: contents})

	if len(f.Bodies) != 1 {
		t.Fatalf("len(Bodies) = %d, want 1 (no thunk for data imports)",
			len(f.Bodies))
	}
	if f.Bodies[0].Name() != "__imp__environ" {
		t.Errorf("name = %q", f.Bodies[0].Name())
	}
}
