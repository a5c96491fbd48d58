package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiskCache_PutGet(t *testing.T) {
	dir := t.TempDir()
	dc, err := OpenDiskCache(DiskConfig{Dir: dir, Capacity: 1 << 20, CompressionLevel: 3})
	if err != nil {
		t.Fatalf("OpenDiskCache failed: %v", err)
	}

	key := SynthesisKey{Text: "Hello.", Voice: "nova", Model: "m", Format: "pcm"}.String()
	audio := bytes.Repeat([]byte{0, 1, 2, 3}, 4096)
	if err := dc.Put(key, audio); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if dc.Size() >= int64(len(audio)) {
		t.Errorf("expected compression, size %d for %d raw bytes", dc.Size(), len(audio))
	}

	got, ok := dc.Get(key)
	if !ok || !bytes.Equal(got, audio) {
		t.Fatalf("Get returned %d bytes, ok=%v", len(got), ok)
	}
	if err := dc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenDiskCache(DiskConfig{Dir: dir, Capacity: 1 << 20, CompressionLevel: 3})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if got, ok := reopened.Get(key); !ok || !bytes.Equal(got, audio) {
		t.Errorf("entry lost across reopen")
	}
}

func TestDiskCache_EvictsLeastRecentlyUsed(t *testing.T) {
	dc, err := OpenDiskCache(DiskConfig{Dir: t.TempDir(), Capacity: 300})
	if err != nil {
		t.Fatalf("OpenDiskCache failed: %v", err)
	}
	defer dc.Close()

	dc.Put("a", make([]byte, 100))
	time.Sleep(2 * time.Millisecond)
	dc.Put("b", make([]byte, 100))
	time.Sleep(2 * time.Millisecond)
	dc.Put("c", make([]byte, 100))
	time.Sleep(2 * time.Millisecond)
	dc.Get("a")

	if err := dc.Put("d", make([]byte, 100)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if dc.Contains("b") {
		t.Error("least recently used entry b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !dc.Contains(k) {
			t.Errorf("entry %s evicted unexpectedly", k)
		}
	}
	if err := dc.Put("huge", make([]byte, 301)); err != ErrItemTooLarge {
		t.Errorf("Put err = %v, want ErrItemTooLarge", err)
	}
}

func TestDiskCache_CorruptFileIsDropped(t *testing.T) {
	dir := t.TempDir()
	dc, err := OpenDiskCache(DiskConfig{Dir: dir, Capacity: 1 << 20})
	if err != nil {
		t.Fatalf("OpenDiskCache failed: %v", err)
	}
	defer dc.Close()

	dc.Put("k", []byte("audio"))
	if err := os.WriteFile(filepath.Join(dir, "k.zst"), []byte("bad"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := dc.Get("k"); ok {
		t.Error("expected a miss for a truncated file")
	}
	if dc.Contains("k") {
		t.Error("corrupt entry still indexed")
	}
}

func TestDiskCache_Prune(t *testing.T) {
	dc, err := OpenDiskCache(DiskConfig{Dir: t.TempDir(), Capacity: 1 << 20})
	if err != nil {
		t.Fatalf("OpenDiskCache failed: %v", err)
	}
	defer dc.Close()

	dc.Put("old", []byte("x"))
	if n := dc.Prune(time.Now().Add(time.Second)); n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
	if dc.Size() != 0 {
		t.Errorf("Size = %d after prune", dc.Size())
	}
}

func TestSynthesisKey(t *testing.T) {
	a := SynthesisKey{Text: "hello", Voice: "nova"}
	b := SynthesisKey{Text: "hello", Voice: "alloy"}
	if a.String() == b.String() {
		t.Error("different voices produced the same key")
	}
	if a.String() != (SynthesisKey{Text: "hello", Voice: "nova"}).String() {
		t.Error("key is not stable")
	}
	if len(a.String()) != 32 {
		t.Errorf("key length = %d", len(a.String()))
	}
}
