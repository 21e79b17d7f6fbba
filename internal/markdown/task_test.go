package markdown

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseShipRelease(t *testing.T) {
	doc := "## Launch\n- [x] Ship release @status:In progress @due:2025-01-01\n"

	drafts := Parse(doc)
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}

	want := TaskDraft{
		Title:    "Ship release",
		Status:   "In progress",
		Metadata: Metadata{Category: "Launch", Due: "2025-01-01"},
	}
	if !reflect.DeepEqual(drafts[0], want) {
		t.Errorf("draft = %+v, want %+v", drafts[0], want)
	}
}

func TestParseLineEndings(t *testing.T) {
	lines := []string{
		"## 🚀 Release",
		"- [ ] Write notes @priority:High",
		"  * [X] Tag build",
		"",
		"## Docs",
		"- [ ] Update README @category:Website @status:Not started",
	}

	lf := Parse(strings.Join(lines, "\n"))
	crlf := Parse(strings.Join(lines, "\r\n"))
	cr := Parse(strings.Join(lines, "\r"))

	if len(lf) != 3 {
		t.Fatalf("LF parse produced %d drafts, want 3", len(lf))
	}
	if !reflect.DeepEqual(lf, crlf) {
		t.Errorf("CRLF parse differs:\n%+v\n%+v", lf, crlf)
	}
	if !reflect.DeepEqual(lf, cr) {
		t.Errorf("CR parse differs:\n%+v\n%+v", lf, cr)
	}
}

func TestParseItems(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []TaskDraft
	}{
		{
			name: "unchecked defaults to not started",
			doc:  "- [ ] Plain task",
			want: []TaskDraft{{Title: "Plain task", Status: "Not started"}},
		},
		{
			name: "checked defaults to done",
			doc:  "* [x] Finished",
			want: []TaskDraft{{Title: "Finished", Status: "Done"}},
		},
		{
			name: "explicit status wins over checkbox",
			doc:  "- [X] Review @status:In progress",
			want: []TaskDraft{{Title: "Review", Status: "In progress"}},
		},
		{
			name: "multi-word tag values",
			doc:  "- [ ] Fix login @priority:Very high @category:Auth flow",
			want: []TaskDraft{{Title: "Fix login", Status: "Not started", Metadata: Metadata{Priority: "Very high", Category: "Auth flow"}}},
		},
		{
			name: "explicit category wins over heading",
			doc:  "## Backend\n- [ ] Cache @category:Perf\n- [ ] Index",
			want: []TaskDraft{
				{Title: "Cache", Status: "Not started", Metadata: Metadata{Category: "Perf"}},
				{Title: "Index", Status: "Not started", Metadata: Metadata{Category: "Backend"}},
			},
		},
		{
			name: "malformed due date stays in title",
			doc:  "- [ ] Pay rent @due:2025-1-1",
			want: []TaskDraft{{Title: "Pay rent @due:2025-1-1", Status: "Not started"}},
		},
		{
			name: "impossible due date stays in title",
			doc:  "- [ ] Pay rent @due:2025-13-40",
			want: []TaskDraft{{Title: "Pay rent @due:2025-13-40", Status: "Not started"}},
		},
		{
			name: "due date between tags",
			doc:  "- [ ] Launch @due:2025-06-30 @priority:Low",
			want: []TaskDraft{{Title: "Launch", Status: "Not started", Metadata: Metadata{Due: "2025-06-30", Priority: "Low"}}},
		},
		{
			name: "inner spacing of the title is kept",
			doc:  "- [ ] a  b @priority:High",
			want: []TaskDraft{{Title: "a  b", Status: "Not started", Metadata: Metadata{Priority: "High"}}},
		},
		{
			name: "due date inside the title",
			doc:  "- [ ] Pay  rent @due:2025-06-30 now @category:Home",
			want: []TaskDraft{{Title: "Pay  rent now", Status: "Not started", Metadata: Metadata{Due: "2025-06-30", Category: "Home"}}},
		},
		{
			name: "non-checklist lines are ignored",
			doc:  "# Title\nSome prose\n- bullet without box\n### Deep heading\n- [ ] Real",
			want: []TaskDraft{{Title: "Real", Status: "Not started"}},
		},
		{
			name: "heading with decorative symbols",
			doc:  "## ✨ Polish\n- [ ] Animations",
			want: []TaskDraft{{Title: "Animations", Status: "Not started", Metadata: Metadata{Category: "Polish"}}},
		},
		{
			name: "indented items",
			doc:  "\t- [ ] Tabbed\n    * [ ] Spaced",
			want: []TaskDraft{
				{Title: "Tabbed", Status: "Not started"},
				{Title: "Spaced", Status: "Not started"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.doc)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	if got := Parse(""); len(got) != 0 {
		t.Errorf("Parse(\"\") = %+v, want none", got)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TODO.md")
	if err := os.WriteFile(path, []byte("- [ ] One\r\n- [x] Two\r\n"), 0644); err != nil {
		t.Fatal(err)
	}

	drafts, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(drafts) != 2 || drafts[1].Status != "Done" {
		t.Errorf("drafts = %+v", drafts)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}
}
