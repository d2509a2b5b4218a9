package remote

import (
	"reflect"
	"strings"
	"testing"
)

func TestGrepCommand(t *testing.T) {
	got := grepCommand("/home/root/.local/share/remarkable/xochitl/", "abc-123")
	want := `grep -l '"parent": "abc-123"' '/home/root/.local/share/remarkable/xochitl/'*.metadata`
	if got != want {
		t.Errorf("grepCommand = %q, want %q", got, want)
	}
}

func TestGrepCommandAddsSlash(t *testing.T) {
	got := grepCommand("/data/xochitl", "")
	want := `grep -l '"parent": ""' '/data/xochitl/'*.metadata`
	if got != want {
		t.Errorf("grepCommand = %q, want %q", got, want)
	}
}

func TestGrepCommandEscapesQuotes(t *testing.T) {
	got := grepCommand("/r/", `uid'; rm -rf /'`)
	if !strings.Contains(got, `'\''`) {
		t.Errorf("single quote not escaped: %q", got)
	}
}

func TestSplitFileList(t *testing.T) {
	out := "/r/a.metadata\n/r/b.metadata\n\n  \n/r/c.metadata\n"
	got := splitFileList(out)
	want := []string{"/r/a.metadata", "/r/b.metadata", "/r/c.metadata"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitFileList = %v, want %v", got, want)
	}

	if got := splitFileList(""); got != nil {
		t.Errorf("splitFileList(empty) = %v, want nil", got)
	}
}

func TestUniqueID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/r/4f1a2b.metadata", "4f1a2b"},
		{"/r/4f1a2b.pdf", "4f1a2b"},
		{"4f1a2b", "4f1a2b"},
		{".Trash", ".Trash"},
		{"/", InvalidUID},
		{"", InvalidUID},
	}
	for _, tt := range tests {
		st := FileStat{Path: tt.path}
		if got := st.UniqueID(); got != tt.want {
			t.Errorf("UniqueID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMoreRecentThan(t *testing.T) {
	older := FileStat{Mtime: 100}
	newer := FileStat{Mtime: 200}
	same := FileStat{Mtime: 100}

	if !newer.MoreRecentThan(older) {
		t.Error("newer.MoreRecentThan(older) = false")
	}
	if older.MoreRecentThan(newer) {
		t.Error("older.MoreRecentThan(newer) = true")
	}
	if same.MoreRecentThan(older) {
		t.Error("equal mtimes reported as more recent")
	}
}

func TestSyntheticDir(t *testing.T) {
	st := SyntheticDir(".Trash")
	if st.Path != ".Trash" {
		t.Errorf("Path = %q", st.Path)
	}
	if st.Perm != 0o444 {
		t.Errorf("Perm = %o, want 444", st.Perm)
	}
	if st.Mtime == 0 || st.Atime == 0 {
		t.Error("synthetic times not set")
	}
}
