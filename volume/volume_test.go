package volume_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"unicode/utf16"

	"github.com/grokify/omnivolume"
	"github.com/grokify/omnivolume/engine/manifest"
	"github.com/grokify/omnivolume/source/file"
	"github.com/grokify/omnivolume/source/memory"
	"github.com/grokify/omnivolume/volume"
)

var fixturePath = filepath.Join("..", "engine", "manifest", "testdata", "kw-srch-1.ndjson")

func openFixture(t *testing.T) *volume.Volume {
	t.Helper()
	vol, err := volume.Open(fixturePath, volume.ModeRead)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = vol.Close() })
	return vol
}

func TestOpenFixtureMetadata(t *testing.T) {
	vol := openFixture(t)

	serial, err := vol.SerialNumber()
	if err != nil {
		t.Fatalf("SerialNumber failed: %v", err)
	}
	if serial != 13425491701870188067 {
		t.Errorf("SerialNumber = %d, want 13425491701870188067", serial)
	}

	name, err := vol.Name()
	if err != nil {
		t.Fatalf("Name failed: %v", err)
	}
	if name != "KW-SRCH-1" {
		t.Errorf("Name = %q, want %q", name, "KW-SRCH-1")
	}

	utf16Name, err := vol.UTF16Name()
	if err != nil {
		t.Fatalf("UTF16Name failed: %v", err)
	}
	if got := string(utf16.Decode(utf16Name)); got != "KW-SRCH-1" {
		t.Errorf("UTF16Name = %q, want %q", got, "KW-SRCH-1")
	}

	cluster, _ := vol.ClusterBlockSize()
	mftEntry, _ := vol.MFTEntrySize()
	indexEntry, _ := vol.IndexEntrySize()
	if cluster != 4096 || mftEntry != 1024 || indexEntry != 4096 {
		t.Errorf("sizes = %d/%d/%d, want 4096/1024/4096", cluster, mftEntry, indexEntry)
	}

	major, minor, err := vol.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if major != 3 || minor != 1 {
		t.Errorf("Version = %d.%d, want 3.1", major, minor)
	}

	bitlocker, _ := vol.HasBitLockerDriveEncryption()
	shadow, _ := vol.HasVolumeShadowSnapshots()
	if bitlocker || shadow {
		t.Errorf("BitLocker/shadow snapshots = %v/%v, want false/false", bitlocker, shadow)
	}

	count, err := vol.NumberOfFileEntries()
	if err != nil {
		t.Fatalf("NumberOfFileEntries failed: %v", err)
	}
	if count != 20 {
		t.Errorf("NumberOfFileEntries = %d, want 20", count)
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := volume.Open(fixturePath, volume.ModeRead|volume.ModeWrite); !omnivolume.IsNotSupported(err) {
		t.Errorf("Open write error = %v, want not supported", err)
	}
	if _, err := volume.Open(filepath.Join(t.TempDir(), "missing.ndjson"), volume.ModeRead); !omnivolume.IsNotFound(err) {
		t.Errorf("Open missing error = %v, want not found", err)
	}
	if _, err := volume.Open(fixturePath, volume.ModeRead, volume.WithEngine("no-such-engine")); !errors.Is(err, volume.ErrUnknownEngine) {
		t.Errorf("Open unknown engine error = %v, want ErrUnknownEngine", err)
	}
	if _, err := volume.OpenHandle(nil); !errors.Is(err, omnivolume.ErrInvalidArgument) {
		t.Errorf("OpenHandle(nil) error = %v, want invalid argument", err)
	}
}

func TestOpenHandleBorrows(t *testing.T) {
	h, err := file.OpenHandle(fixturePath, omnivolume.AccessRead)
	if err != nil {
		t.Fatalf("OpenHandle failed: %v", err)
	}
	defer func() { _ = h.Free() }()

	vol, err := volume.OpenHandle(h)
	if err != nil {
		t.Fatalf("volume.OpenHandle failed: %v", err)
	}
	name, _ := vol.Name()
	if name != "KW-SRCH-1" {
		t.Errorf("Name = %q, want %q", name, "KW-SRCH-1")
	}
	if err := vol.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	open, err := h.IsOpen()
	if err != nil || !open {
		t.Errorf("handle IsOpen = %v, %v after volume Close, want true, nil", open, err)
	}
	if err := h.Free(); err != nil {
		t.Errorf("Free failed: %v", err)
	}
}

func TestOpenSourceOwnsHandle(t *testing.T) {
	src, err := file.Open(fixturePath, omnivolume.AccessRead)
	if err != nil {
		t.Fatalf("file.Open failed: %v", err)
	}

	vol, err := volume.OpenSource(src)
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}
	if err := vol.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if src.IsOpen() {
		t.Error("source still open after volume Close")
	}
}

func TestClosedVolume(t *testing.T) {
	vol, err := volume.Open(fixturePath, volume.ModeRead)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	entry, err := vol.FileEntryByPath("/Documents/report.txt")
	if err != nil {
		t.Fatalf("FileEntryByPath failed: %v", err)
	}
	stream, err := entry.DataStream()
	if err != nil {
		t.Fatalf("DataStream failed: %v", err)
	}

	if err := vol.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !vol.IsClosed() {
		t.Error("IsClosed = false after Close")
	}
	if err := vol.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	checks := map[string]error{}
	_, checks["SerialNumber"] = vol.SerialNumber()
	_, checks["Name"] = vol.Name()
	_, _, checks["Version"] = vol.Version()
	_, checks["NumberOfFileEntries"] = vol.NumberOfFileEntries()
	_, checks["RootDirectory"] = vol.RootDirectory()
	_, checks["FileEntryByIndex"] = vol.FileEntryByIndex(5)
	_, checks["FileEntryByPath"] = vol.FileEntryByPath("/")
	_, checks["Entries"] = vol.Entries()
	checks["SignalAbort"] = vol.SignalAbort()
	_, checks["entry.Name"] = entry.Name()
	_, checks["entry.Parent"] = entry.Parent()
	_, checks["stream.Read"] = stream.Read(make([]byte, 4))

	for name, err := range checks {
		if !errors.Is(err, omnivolume.ErrVolumeClosed) {
			t.Errorf("%s after Close error = %v, want volume closed", name, err)
		}
		if !omnivolume.IsProtocolViolation(err) {
			t.Errorf("%s after Close is not a protocol violation", name)
		}
	}
	if stream.IsOpen() {
		t.Error("stream IsOpen = true after volume Close")
	}
}

func TestFileEntryByPath(t *testing.T) {
	vol := openFixture(t)

	tests := []struct {
		path string
		want string
	}{
		{"/", "."},
		{"/Documents", "Documents"},
		{"Documents/notes.txt", "notes.txt"},
		{"/DOCUMENTS/Report.TXT", "report.txt"},
		{"/$Extend/$ObjId", "$ObjId"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			entry, err := vol.FileEntryByPath(tt.path)
			if err != nil {
				t.Fatalf("FileEntryByPath failed: %v", err)
			}
			name, _ := entry.Name()
			if name != tt.want {
				t.Errorf("Name = %q, want %q", name, tt.want)
			}
		})
	}

	for _, path := range []string{"", "/nope", "/Documents//notes.txt"} {
		if _, err := vol.FileEntryByPath(path); !omnivolume.IsNotFound(err) {
			t.Errorf("FileEntryByPath(%q) error = %v, want not found", path, err)
		}
	}
}

func TestFileEntryByUTF16Path(t *testing.T) {
	vol := openFixture(t)

	entry, err := vol.FileEntryByUTF16Path(utf16.Encode([]rune("/ÜberDatei.txt")))
	if err != nil {
		t.Fatalf("FileEntryByUTF16Path failed: %v", err)
	}
	idx, _ := entry.Index()
	if idx != 18 {
		t.Errorf("Index = %d, want 18", idx)
	}

	name, _ := entry.UTF16Name()
	if !slices.Equal(name, utf16.Encode([]rune("ÜberDatei.txt"))) {
		t.Errorf("UTF16Name = %v", name)
	}

	for _, path := range [][]uint16{
		{'/', 0xd800},
		{'/', 0xdc00, 'a'},
		{'/', 0xd800, 'a'},
	} {
		if _, err := vol.FileEntryByUTF16Path(path); !omnivolume.IsNotFound(err) {
			t.Errorf("FileEntryByUTF16Path(%v) error = %v, want not found", path, err)
		}
	}
}

func TestSignalAbortPendingOpen(t *testing.T) {
	vol, err := volume.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = vol.Close() }()

	if _, err := vol.Name(); !omnivolume.IsProtocolViolation(err) {
		t.Errorf("Name before Open error = %v, want protocol violation", err)
	}

	if err := vol.SignalAbort(); err != nil {
		t.Fatalf("SignalAbort failed: %v", err)
	}
	if err := vol.Open(fixturePath, volume.ModeRead); !errors.Is(err, manifest.ErrAborted) {
		t.Fatalf("Open error = %v, want ErrAborted", err)
	}

	// The abort is consumed; the volume can be opened again.
	if err := vol.Open(fixturePath, volume.ModeRead); err != nil {
		t.Fatalf("Open after abort failed: %v", err)
	}
	if err := vol.Open(fixturePath, volume.ModeRead); !errors.Is(err, omnivolume.ErrHandleAlreadyOpen) {
		t.Errorf("second Open error = %v, want already open", err)
	}
	name, err := vol.Name()
	if err != nil {
		t.Fatalf("Name failed: %v", err)
	}
	if name != "KW-SRCH-1" {
		t.Errorf("Name = %q, want %q", name, "KW-SRCH-1")
	}
}

// gatedSource blocks its second read, the first one after the image
// magic, until released.
type gatedSource struct {
	*memory.Source
	reads   int
	started chan struct{}
	release chan struct{}
}

func (g *gatedSource) Read(p []byte) (int, error) {
	g.reads++
	if g.reads == 2 {
		close(g.started)
		<-g.release
	}
	return g.Source.Read(p)
}

func TestSignalAbortRunningOpen(t *testing.T) {
	image, err := os.ReadFile(fixturePath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	src := &gatedSource{
		Source:  memory.New(image),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}

	vol, err := volume.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = vol.Close() }()

	errc := make(chan error, 1)
	go func() { errc <- vol.OpenSource(src) }()

	<-src.started
	if err := vol.SignalAbort(); err != nil {
		t.Fatalf("SignalAbort failed: %v", err)
	}
	close(src.release)

	if err := <-errc; !errors.Is(err, manifest.ErrAborted) {
		t.Fatalf("OpenSource error = %v, want ErrAborted", err)
	}
	if _, err := vol.RootDirectory(); !omnivolume.IsProtocolViolation(err) {
		t.Errorf("RootDirectory after aborted open error = %v, want protocol violation", err)
	}
	if err := vol.Close(); err != nil {
		t.Errorf("Close after aborted open failed: %v", err)
	}
}

func TestNestedVolume(t *testing.T) {
	vol := openFixture(t)

	entry, err := vol.FileEntryByPath("/Pictures/nested.ndjson")
	if err != nil {
		t.Fatalf("FileEntryByPath failed: %v", err)
	}
	stream, err := entry.DataStream()
	if err != nil {
		t.Fatalf("DataStream failed: %v", err)
	}

	nested, err := volume.OpenSource(stream)
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}

	name, _ := nested.Name()
	if name != "NESTED" {
		t.Errorf("nested Name = %q, want %q", name, "NESTED")
	}

	inner, err := nested.FileEntryByPath("/inner.txt")
	if err != nil {
		t.Fatalf("FileEntryByPath failed: %v", err)
	}
	innerStream, err := inner.DataStream()
	if err != nil {
		t.Fatalf("DataStream failed: %v", err)
	}
	data, err := io.ReadAll(innerStream)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "inner volume data\n" {
		t.Errorf("inner data = %q, want %q", data, "inner volume data\n")
	}

	if err := nested.Close(); err != nil {
		t.Fatalf("nested Close failed: %v", err)
	}
	if _, err := vol.Name(); err != nil {
		t.Errorf("outer volume unusable after nested Close: %v", err)
	}
}

func TestEngines(t *testing.T) {
	if !slices.Contains(volume.Engines(), manifest.Name) {
		t.Errorf("Engines() = %v, missing %q", volume.Engines(), manifest.Name)
	}
}
