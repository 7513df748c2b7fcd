package filter

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyFilter(t *testing.T) {
	var f *Filter
	if !f.Match(Entry{Path: "/anything"}) {
		t.Error("nil filter should match everything")
	}
	if !New().IsEmpty() {
		t.Error("New() should be empty")
	}
}

func TestIncludeExclude(t *testing.T) {
	f := New(
		Include("*.txt"),
		Exclude("/$Extend/**"),
		Exclude("notes.*"),
	)

	tests := []struct {
		path string
		dir  bool
		want bool
	}{
		{"/Documents/report.txt", false, true},
		{"/Documents/REPORT.TXT", false, true},
		{"/Documents/notes.txt", false, false},
		{"/Pictures/nested.ndjson", false, false},
		{"/Pictures", true, true},
		{"/$Extend", true, false},
		{"/$Extend/$ObjId", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := f.Match(Entry{Path: tt.path, Directory: tt.dir}); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSizeRules(t *testing.T) {
	f := New(MinSize(10), MaxSize(1*KB))

	tests := []struct {
		size int64
		want bool
	}{
		{5, false},
		{10, true},
		{1024, true},
		{1025, false},
	}
	for _, tt := range tests {
		if got := f.Match(Entry{Path: "/f", Size: tt.size}); got != tt.want {
			t.Errorf("Match(size %d) = %v, want %v", tt.size, got, tt.want)
		}
	}

	if !f.Match(Entry{Path: "/dir", Directory: true}) {
		t.Error("size rules should not drop directories")
	}
}

func TestModificationTimeRules(t *testing.T) {
	start := time.Date(2019, 3, 9, 0, 0, 0, 0, time.UTC)
	end := time.Date(2019, 3, 10, 0, 0, 0, 0, time.UTC)
	f := New(ModifiedAfter(start), ModifiedBefore(end))

	tests := []struct {
		mtime time.Time
		want  bool
	}{
		{start.Add(-time.Hour), false},
		{start.Add(10 * time.Hour), true},
		{end.Add(time.Hour), false},
	}
	for _, tt := range tests {
		if got := f.Match(Entry{Path: "/f", ModificationTime: tt.mtime}); got != tt.want {
			t.Errorf("Match(%v) = %v, want %v", tt.mtime, got, tt.want)
		}
	}
}

func TestExcludeAttributes(t *testing.T) {
	const hidden, system = 0x2, 0x4
	f := New(ExcludeAttributes(hidden | system))

	if f.Match(Entry{Path: "/$MFT", AttributeFlags: hidden | system}) {
		t.Error("system file should be excluded")
	}
	if !f.Match(Entry{Path: "/a.txt", AttributeFlags: 0x20}) {
		t.Error("archive file should be included")
	}
}

func TestFromFile(t *testing.T) {
	rules := "# text only\n+ *.txt\n\n- notes.txt\n*.tmp\n"
	rulesPath := filepath.Join(t.TempDir(), "rules.txt")
	if err := os.WriteFile(rulesPath, []byte(rules), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	opt, err := FromFile(rulesPath)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	f := New(opt)

	if !f.MatchPath("/Documents/report.txt") {
		t.Error("report.txt should match")
	}
	if f.MatchPath("/Documents/notes.txt") {
		t.Error("notes.txt should be excluded")
	}
	if f.MatchPath("/scratch.tmp") {
		t.Error("scratch.tmp should be excluded")
	}
}

func TestFromFileErrors(t *testing.T) {
	if _, err := FromFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("FromFile(missing) should fail")
	}

	rulesPath := filepath.Join(t.TempDir(), "bad.txt")
	if err := os.WriteFile(rulesPath, []byte("+ [unclosed\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := FromFile(rulesPath); err == nil {
		t.Error("FromFile with a bad pattern should fail")
	}
}
