package vcs

import (
	"reflect"
	"testing"
)

func TestParseNameStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []DiffEntry
		wantErr bool
	}{
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:  "add modify delete",
			input: "A\tzh-hans/new.md\nM\ten/intro.md\nD\ten/old.png\n",
			want: []DiffEntry{
				{Kind: Added, Path: "zh-hans/new.md"},
				{Kind: Modified, Path: "en/intro.md"},
				{Kind: Deleted, Path: "en/old.png"},
			},
		},
		{
			name:  "rename and copy",
			input: "R100\ten/a.md\ten/b.md\nC075\tzh-hans/x.md\tzh-hans/y.md\n",
			want: []DiffEntry{
				{Kind: Renamed, Similarity: 100, OldPath: "en/a.md", Path: "en/b.md"},
				{Kind: Copied, Similarity: 75, OldPath: "zh-hans/x.md", Path: "zh-hans/y.md"},
			},
		},
		{
			name:  "paths with spaces",
			input: "M\ten/my file.md\n",
			want:  []DiffEntry{{Kind: Modified, Path: "en/my file.md"}},
		},
		{
			name:    "rename missing target",
			input:   "R100\ten/a.md\n",
			wantErr: true,
		},
		{
			name:    "unknown kind",
			input:   "X\ten/a.md\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNameStatus([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNameStatus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseNameStatus() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDiffEntryString(t *testing.T) {
	e := DiffEntry{Kind: Renamed, Similarity: 90, OldPath: "en/a.md", Path: "en/b.md"}
	if got, want := e.String(), "R090\ten/a.md\ten/b.md"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	m := DiffEntry{Kind: Modified, Path: "en/a.md"}
	if got, want := m.String(), "M\ten/a.md"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMovedAwayIgnoresCopies(t *testing.T) {
	entries := []DiffEntry{
		{Kind: Renamed, Similarity: 100, OldPath: "en/a.md", Path: "en/b.md"},
		{Kind: Copied, Similarity: 100, OldPath: "en/c.md", Path: "en/d.md"},
	}
	moved := MovedAway(entries)
	if !moved["en/a.md"] || moved["en/c.md"] {
		t.Errorf("MovedAway() = %v", moved)
	}
}

func TestCommitIDShort(t *testing.T) {
	if got := CommitID("0123456789abcdef").Short(); got != "01234567" {
		t.Errorf("Short() = %q", got)
	}
	if got := CommitID("abc").Short(); got != "abc" {
		t.Errorf("Short() = %q", got)
	}
}
