package dictionary

import "testing"

func TestLookupKnownTag(t *testing.T) {
	e, ok := Default.Lookup(Tag{0x0010, 0x0010})
	if !ok {
		t.Fatal("expected PatientName to be registered")
	}
	if e.VR != "PN" {
		t.Errorf("expected VR PN, got %s", e.VR)
	}
	if e.Keyword != "PatientName" {
		t.Errorf("expected keyword PatientName, got %s", e.Keyword)
	}
}

func TestLookupUnknownTag(t *testing.T) {
	_, ok := Default.Lookup(Tag{0xFFFF, 0xFFFF})
	if ok {
		t.Fatal("expected unknown tag to be absent, not an error")
	}
	if vr := Default.VROf(Tag{0xFFFF, 0xFFFF}); vr != "UN" {
		t.Errorf("expected VR fallback UN, got %s", vr)
	}
}

func TestLookupKeyword(t *testing.T) {
	tag, ok := Default.LookupKeyword("StudyInstanceUID")
	if !ok {
		t.Fatal("expected StudyInstanceUID keyword to resolve")
	}
	if tag != (Tag{0x0020, 0x000D}) {
		t.Errorf("unexpected tag for StudyInstanceUID: %s", tag)
	}
}

func TestVMAllows(t *testing.T) {
	cases := []struct {
		name  string
		vm    VM
		count int
		want  bool
	}{
		{"exact one satisfied", VM{Min: 1, Max: 1}, 1, true},
		{"exact one violated by two", VM{Min: 1, Max: 1}, 2, false},
		{"unbounded satisfied by many", VM{Min: 1, Max: 0}, 50, true},
		{"below minimum", VM{Min: 2, Max: 2}, 1, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.vm.Allows(c.count); got != c.want {
				t.Errorf("Allows(%d) = %v, want %v", c.count, got, c.want)
			}
		})
	}
}

func TestRegisterPrivateRejectsEvenGroup(t *testing.T) {
	d := New()
	err := d.RegisterPrivate(Entry{Tag: Tag{0x0010, 0x1000}, VR: "LO"})
	if err == nil {
		t.Fatal("expected error registering even-group tag as private")
	}
	var target *ErrPrivateTagRequired
	if !asErrPrivateTagRequired(err, &target) {
		t.Errorf("expected ErrPrivateTagRequired, got %T", err)
	}
}

func asErrPrivateTagRequired(err error, target **ErrPrivateTagRequired) bool {
	e, ok := err.(*ErrPrivateTagRequired)
	if ok {
		*target = e
	}
	return ok
}

func TestRegisterPrivateRejectsDuplicate(t *testing.T) {
	d := New()
	tag := Tag{0x0011, 0x1001}
	if err := d.RegisterPrivate(Entry{Tag: tag, VR: "LO", Keyword: "VendorWidget"}); err != nil {
		t.Fatalf("unexpected error on first registration: %v", err)
	}
	if err := d.RegisterPrivate(Entry{Tag: tag, VR: "LO"}); err == nil {
		t.Fatal("expected error re-registering the same private tag")
	}
}

func TestRegisterPrivateThenLookup(t *testing.T) {
	d := New()
	tag := Tag{0x0011, 0x1010}
	if err := d.RegisterPrivate(Entry{Tag: tag, VR: "SH", Keyword: "VendorStatus"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, ok := d.Lookup(tag)
	if !ok || e.VR != "SH" {
		t.Errorf("expected registered private tag to be found with VR SH, got %+v ok=%v", e, ok)
	}
}
