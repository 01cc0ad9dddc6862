package ostreerepo

import "testing"

func TestObjectTypeSuffixRoundTrip(t *testing.T) {
	types := []ObjectType{ObjectTypeCommit, ObjectTypeCommitMeta, ObjectTypeDirTree, ObjectTypeDirMeta, ObjectTypeFile}
	for _, want := range types {
		suffix := want.Suffix()
		got, ok := ObjectTypeFromSuffix(suffix)
		if !ok {
			t.Fatalf("ObjectTypeFromSuffix(%q): not recognised", suffix)
		}
		if got != want {
			t.Errorf("ObjectTypeFromSuffix(%q) = %v, want %v", suffix, got, want)
		}
	}
}

func TestObjectTypeFromSuffixUnknown(t *testing.T) {
	if _, ok := ObjectTypeFromSuffix("bogus"); ok {
		t.Error("expected ObjectTypeFromSuffix to reject an unrecognised suffix")
	}
}

func TestFileInfoIsSymlink(t *testing.T) {
	reg := FileInfo{Mode: 0o100644, Size: 5}
	if reg.IsSymlink() {
		t.Error("regular file reported as symlink")
	}
	link := FileInfo{Mode: 0o120777, SymlinkTarget: "target"}
	if !link.IsSymlink() {
		t.Error("symlink not reported as symlink")
	}
}
