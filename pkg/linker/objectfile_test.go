package linker

import "testing"

func TestObjectSectionsAndChunks(t *testing.T) {
	obj := makeObject([]testSection{
		{name: ".text", chars: testCodeChars, data: []byte{0xC3}},
		{name: ".debug$S", chars: IMAGE_SCN_CNT_INITIALIZED_DATA, data: []byte{1, 2}},
		{name: ".drectve", chars: IMAGE_SCN_LNK_REMOVE, data: []byte(" /defaultlib:\"ws2_32\" \x00")},
		{name: ".rmvd", chars: IMAGE_SCN_CNT_INITIALIZED_DATA | IMAGE_SCN_LNK_REMOVE, data: []byte{3}},
	}, []testSymbol{
		{name: "main", section: 1, class: IMAGE_SYM_CLASS_EXTERNAL, typ: 0x20},
	})

	ctx := newTestContext("main")
	o := NewObjectFile(ctx, &File{Name: "main.obj", Contents: obj})

	if len(o.Chunks) != 5 {
		t.Fatalf("len(Chunks) = %d, want 5", len(o.Chunks))
	}
	if o.Chunks[0] != nil {
		t.Errorf("Chunks[0] should be the unused 1-based slot")
	}
	if o.Chunks[1] == nil {
		t.Fatalf(".text chunk missing")
	}
	for i := 2; i <= 4; i++ {
		if o.Chunks[i] != nil {
			t.Errorf("Chunks[%d] should be dropped", i)
		}
	}
	if o.Directives != `/defaultlib:"ws2_32"` {
		t.Errorf("Directives = %q", o.Directives)
	}

	sc := o.Chunks[1].(*SectionChunk)
	if sc.Name != ".text" || sc.Size() != 1 || sc.Contents[0] != 0xC3 {
		t.Errorf("bad .text chunk: name=%q size=%d", sc.Name, sc.Size())
	}
}

func TestObjectSymbolClassification(t *testing.T) {
	obj := makeObject([]testSection{
		{name: ".text", chars: testCodeChars, data: []byte{0xC3}},
	}, []testSymbol{
		{name: "undef", section: 0, class: IMAGE_SYM_CLASS_EXTERNAL},
		{name: "comm", section: 0, value: 16, class: IMAGE_SYM_CLASS_EXTERNAL},
		{name: "abs", section: -1, value: 7, class: IMAGE_SYM_CLASS_EXTERNAL},
		{name: "real", section: 1, class: IMAGE_SYM_CLASS_EXTERNAL, typ: 0x20},
		{name: "weak", section: 0, class: IMAGE_SYM_CLASS_WEAK_EXTERNAL,
			aux: [][]byte{auxWeakExternal(3)}},
	})

	ctx := newTestContext("main")
	o := NewObjectFile(ctx, &File{Name: "t.obj", Contents: obj})

	if _, ok := o.SparseBodies[0].(*Undefined); !ok {
		t.Errorf("undef: got %T", o.SparseBodies[0])
	}

	comm, ok := o.SparseBodies[1].(*DefinedRegular)
	if !ok || !comm.IsCommon() {
		t.Fatalf("comm: got %T", o.SparseBodies[1])
	}
	if comm.Chunk.Size() != 16 {
		t.Errorf("common chunk size = %d, want 16", comm.Chunk.Size())
	}
	if len(o.Chunks) != 3 || o.Chunks[2] == nil {
		t.Errorf("common chunk should be appended to the chunk array")
	}

	abs, ok := o.SparseBodies[2].(*DefinedAbsolute)
	if !ok {
		t.Fatalf("abs: got %T", o.SparseBodies[2])
	}
	if abs.Rva != 7-ctx.Arg.ImageBase {
		t.Errorf("abs RVA = %#x", abs.Rva)
	}

	real, ok := o.SparseBodies[3].(*DefinedRegular)
	if !ok || real.Chunk != o.Chunks[1] {
		t.Errorf("real: got %T", o.SparseBodies[3])
	}

	weak, ok := o.SparseBodies[4].(*Undefined)
	if !ok {
		t.Fatalf("weak: got %T", o.SparseBodies[4])
	}
	if weak.WeakAlias() != o.SparseBodies[3] {
		t.Errorf("weak alias should point at the tag symbol's body")
	}
}

func TestObjectLongNames(t *testing.T) {
	obj := makeObject([]testSection{
		{name: ".text$inline_frobnicate", chars: testCodeChars | IMAGE_SCN_LNK_COMDAT,
			data: []byte{0xC3}},
	}, []testSymbol{
		{name: "inline_frobnicate_impl", section: 1,
			class: IMAGE_SYM_CLASS_EXTERNAL, typ: 0x20},
	})

	ctx := newTestContext("main")
	o := NewObjectFile(ctx, &File{Name: "t.obj", Contents: obj})

	sc := o.Chunks[1].(*SectionChunk)
	if sc.Name != ".text$inline_frobnicate" {
		t.Errorf("section name = %q", sc.Name)
	}
	if got := o.Bodies[0].Name(); got != "inline_frobnicate_impl" {
		t.Errorf("symbol name = %q", got)
	}
}
