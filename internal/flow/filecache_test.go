package flow

import (
	"bytes"
	"testing"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

func TestFileCachePutGetRemove(t *testing.T) {
	cache := NewFileCache()

	upload := models.FileUpload{Name: "letter.pdf", Size: 3, Type: "application/pdf", Data: []byte("abc")}
	descriptor := cache.Put(0, upload)

	if descriptor.Handle == "" {
		t.Fatal("Put should assign a handle")
	}
	if descriptor.Name != "letter.pdf" || descriptor.Index != 0 {
		t.Errorf("descriptor metadata wrong: %+v", descriptor)
	}

	got, ok := cache.Get(descriptor.Handle)
	if !ok {
		t.Fatal("Get should find the cached upload")
	}
	if !bytes.Equal(got.Data, upload.Data) {
		t.Error("cached bytes differ from the upload")
	}

	cache.Remove(descriptor.Handle)
	if _, ok := cache.Get(descriptor.Handle); ok {
		t.Error("removed handle should not resolve")
	}
}

func TestFileCacheClear(t *testing.T) {
	cache := NewFileCache()
	cache.Put(0, models.FileUpload{Name: "a", Data: []byte("a")})
	cache.Put(1, models.FileUpload{Name: "b", Data: []byte("b")})

	if cache.Len() != 2 {
		t.Fatalf("expected 2 cached files, got %d", cache.Len())
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", cache.Len())
	}
}

func TestFileCacheHandlesAreUnique(t *testing.T) {
	cache := NewFileCache()
	a := cache.Put(0, models.FileUpload{Name: "same.pdf", Data: []byte("x")})
	b := cache.Put(1, models.FileUpload{Name: "same.pdf", Data: []byte("x")})
	if a.Handle == b.Handle {
		t.Error("identical uploads must still get distinct handles")
	}
}
