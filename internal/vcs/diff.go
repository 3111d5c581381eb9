package vcs

import (
	"fmt"
	"strconv"
	"strings"
)

// ChangeKind classifies one entry of a diff tree.
type ChangeKind string

const (
	Added    ChangeKind = "A"
	Modified ChangeKind = "M"
	Deleted  ChangeKind = "D"
	Renamed  ChangeKind = "R"
	Copied   ChangeKind = "C"
	// TypeChanged covers a file that became a symlink or the reverse.
	TypeChanged ChangeKind = "T"
)

// String returns the long name of the kind.
func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	case Copied:
		return "copied"
	case TypeChanged:
		return "type-changed"
	default:
		return string(k)
	}
}

// DiffEntry is one line of `git diff --name-status -C`.
type DiffEntry struct {
	Kind ChangeKind
	// Similarity is the rename/copy score in percent (0-100).
	Similarity int
	// OldPath is set for renames and copies only.
	OldPath string
	// Path is the resulting path.
	Path string
}

// IsExact reports a pure move or copy (100% similarity).
func (e DiffEntry) IsExact() bool {
	return (e.Kind == Renamed || e.Kind == Copied) && e.Similarity == 100
}

// IsMoveOrCopy reports whether the entry has an origin path.
func (e DiffEntry) IsMoveOrCopy() bool {
	return e.Kind == Renamed || e.Kind == Copied
}

// String renders the entry the way git prints it, tab separated.
func (e DiffEntry) String() string {
	if e.IsMoveOrCopy() {
		return fmt.Sprintf("%s%03d\t%s\t%s", string(e.Kind), e.Similarity, e.OldPath, e.Path)
	}
	return fmt.Sprintf("%s\t%s", string(e.Kind), e.Path)
}

// ParseNameStatus parses the output of `git diff --name-status -C`.
//
// Example input:
//
//	M	zh-hans/intro.md
//	R100	en/a.md	en/b.md
func ParseNameStatus(output []byte) ([]DiffEntry, error) {
	var entries []DiffEntry
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := parseNameStatusLine(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseNameStatusLine(line string) (DiffEntry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 || fields[0] == "" {
		return DiffEntry{}, fmt.Errorf("malformed name-status line %q", line)
	}

	code := fields[0]
	entry := DiffEntry{Kind: ChangeKind(code[:1])}

	switch entry.Kind {
	case Renamed, Copied:
		if len(fields) != 3 {
			return DiffEntry{}, fmt.Errorf("malformed %s line %q", entry.Kind, line)
		}
		score, err := strconv.Atoi(code[1:])
		if err != nil || score < 0 || score > 100 {
			return DiffEntry{}, fmt.Errorf("invalid similarity in %q", line)
		}
		entry.Similarity = score
		entry.OldPath = fields[1]
		entry.Path = fields[2]
	case Added, Modified, Deleted, TypeChanged:
		entry.Path = fields[1]
	default:
		return DiffEntry{}, fmt.Errorf("unknown change kind %q", code)
	}

	return entry, nil
}

// MovedAway returns the set of origin paths of renames in entries. Copies
// keep their origin, so they are not included.
func MovedAway(entries []DiffEntry) map[string]bool {
	moved := make(map[string]bool)
	for _, e := range entries {
		if e.Kind == Renamed {
			moved[e.OldPath] = true
		}
	}
	return moved
}

// Touched returns the set of resulting paths in entries.
func Touched(entries []DiffEntry) map[string]bool {
	touched := make(map[string]bool, len(entries))
	for _, e := range entries {
		touched[e.Path] = true
	}
	return touched
}
