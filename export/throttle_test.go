package export

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/grokify/omnivolume/engine/manifest"
	"github.com/grokify/omnivolume/volume"
)

func TestBucket(t *testing.T) {
	b := newBucket(1000)
	if b == nil {
		t.Fatal("newBucket returned nil for a positive rate")
	}

	// The bucket starts full.
	start := time.Now()
	b.take(500)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first take took %v, want near-instant", elapsed)
	}

	start = time.Now()
	b.take(1000)
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond || elapsed > 800*time.Millisecond {
		t.Errorf("second take took %v, want about 500ms", elapsed)
	}
}

func TestBucketDisabled(t *testing.T) {
	for _, rate := range []int64{0, -100} {
		if b := newBucket(rate); b != nil {
			t.Errorf("newBucket(%d) = %v, want nil", rate, b)
		}
	}

	var b *bucket
	b.take(1 << 30)
	b.giveBack(10)
}

func TestBucketGiveBack(t *testing.T) {
	b := newBucket(1000)
	b.take(1000)
	b.giveBack(500)

	start := time.Now()
	b.take(500)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("take after giveBack took %v, want near-instant", elapsed)
	}

	// Tokens never exceed the rate.
	b.giveBack(5000)
	b.mu.Lock()
	tokens := b.tokens
	b.mu.Unlock()
	if tokens > 1000 {
		t.Errorf("tokens = %d, want at most 1000", tokens)
	}
}

func openReportStream(t *testing.T) *volume.DataStream {
	t.Helper()
	vol, err := volume.Open(filepath.Join("..", "engine", "manifest", "testdata", "kw-srch-1.ndjson"), volume.ModeRead)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = vol.Close() })

	entry, err := vol.FileEntryByPath("/Documents/report.txt")
	if err != nil {
		t.Fatalf("FileEntryByPath failed: %v", err)
	}
	ds, err := entry.DataStream()
	if err != nil {
		t.Fatalf("DataStream failed: %v", err)
	}
	return ds
}

func TestPacedStream(t *testing.T) {
	for _, b := range []*bucket{nil, newBucket(1 << 20)} {
		ds := openReportStream(t)
		got, err := io.ReadAll(pace(context.Background(), ds, b))
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if string(got) != "keyword search report\n" {
			t.Errorf("read %q, want %q", got, "keyword search report\n")
		}
	}
}

func TestPacedStreamChunks(t *testing.T) {
	b := newBucket(1000)
	p := pace(context.Background(), openReportStream(t), b)

	buf := make([]byte, 2*throttleChunk)
	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 22 {
		t.Errorf("Read = %d, want 22", n)
	}

	// A short read returns what it did not use.
	b.mu.Lock()
	tokens := b.tokens
	b.mu.Unlock()
	if tokens < 1000-22-10 {
		t.Errorf("tokens = %d after a 22 byte read, want about %d", tokens, 1000-22)
	}
}

func TestPacedStreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := pace(ctx, openReportStream(t), nil)
	if _, err := p.Read(make([]byte, 8)); !errors.Is(err, context.Canceled) {
		t.Errorf("Read error = %v, want context.Canceled", err)
	}

	size, err := p.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 22 {
		t.Errorf("Size = %d, want 22", size)
	}
}
