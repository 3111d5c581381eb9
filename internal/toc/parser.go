// Package toc keeps the two GitBook tables of contents in step.
//
// zh-hans/SUMMARY.md and en/SUMMARY.md must share the same structure: the
// same entries in the same order, pointing at the same relative targets,
// with identical indentation on every line. Only the titles differ. When a
// commit edits one table, ProduceSiblingPatch rewrites that commit's diff
// so it applies to the other table, carrying titles over where the target
// is already known and translating only the genuinely new ones.
package toc

import (
	"regexp"
	"strings"

	"github.com/zeebo/xxh3"
)

// Entry is one bulleted link of a table of contents:
//
//	<Indent><Bullet><BulletGap>[<Title>]<LinkGap>(<Target>)
type Entry struct {
	// Line is the zero-based line index in the document.
	Line      int
	Indent    string
	Bullet    byte
	BulletGap string
	Title     string
	LinkGap   string
	Target    string

	// titleStart and titleEnd are byte offsets of Title in the line.
	titleStart, titleEnd int
}

// SameShape reports whether two entries match in everything but the title.
func (e Entry) SameShape(o Entry) bool {
	return e.Indent == o.Indent &&
		e.Bullet == o.Bullet &&
		e.BulletGap == o.BulletGap &&
		e.LinkGap == o.LinkGap &&
		e.Target == o.Target
}

// WithTitle returns line with the entry's title replaced.
func (e Entry) WithTitle(line, title string) string {
	return line[:e.titleStart] + title + line[e.titleEnd:]
}

var entryRe = regexp.MustCompile(`^([ ]*)([*+-])([ ]*)\[(.+)\]([ ]*)\((.+)\)`)

// ParseLine parses a single line. ok is false for lines that are not
// table-of-contents entries.
func ParseLine(line string) (Entry, bool) {
	m := entryRe.FindStringSubmatchIndex(line)
	if m == nil {
		return Entry{}, false
	}
	return Entry{
		Indent:     line[m[2]:m[3]],
		Bullet:     line[m[4]],
		BulletGap:  line[m[6]:m[7]],
		Title:      line[m[8]:m[9]],
		LinkGap:    line[m[10]:m[11]],
		Target:     line[m[12]:m[13]],
		titleStart: m[8],
		titleEnd:   m[9],
	}, true
}

// Document is a parsed table of contents.
type Document struct {
	// Entries are the link lines in document order.
	Entries []Entry
	// Layout holds the leading spaces of every line after the first,
	// blank lines included.
	Layout []string
}

// Parse parses a whole SUMMARY.md.
func Parse(text string) Document {
	lines := strings.Split(text, "\n")
	doc := Document{Layout: make([]string, 0, len(lines))}

	for i, line := range lines {
		if i > 0 {
			doc.Layout = append(doc.Layout, line[:len(line)-len(strings.TrimLeft(line, " "))])
		}
		if e, ok := ParseLine(line); ok {
			e.Line = i
			doc.Entries = append(doc.Entries, e)
		}
	}
	return doc
}

// Titles maps every target to its title. The first entry wins when a
// target is listed twice.
func (d Document) Titles() map[string]string {
	titles := make(map[string]string, len(d.Entries))
	for _, e := range d.Entries {
		if _, ok := titles[e.Target]; !ok {
			titles[e.Target] = e.Title
		}
	}
	return titles
}

// Fingerprint hashes the indentation profile of the document.
func (d Document) Fingerprint() uint64 {
	return xxh3.HashString(strings.Join(d.Layout, "\n"))
}
