// Package langtree maps paths between the two language roots of the wiki.
//
// The repository keeps one directory per language, zh-hans/ and en/, with
// mirrored layouts. Every document under one root has a sibling at the same
// relative path under the other root.
package langtree

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Lang is a language code used by the translation backends.
type Lang string

const (
	Chinese Lang = "zh"
	English Lang = "en"
)

// ErrNotInTree is returned for paths outside both language roots.
var ErrNotInTree = errors.New("path is not under a language root")

// TOCFile is the table-of-contents file name in each root.
const TOCFile = "SUMMARY.md"

// Langs lists both languages in a stable order.
var Langs = []Lang{Chinese, English}

// Dir returns the root directory name of the language.
func (l Lang) Dir() string {
	switch l {
	case Chinese:
		return "zh-hans"
	case English:
		return "en"
	default:
		return string(l)
	}
}

// Sibling returns the other language.
func (l Lang) Sibling() Lang {
	if l == Chinese {
		return English
	}
	return Chinese
}

// Valid reports whether l is one of the two supported languages.
func (l Lang) Valid() bool {
	return l == Chinese || l == English
}

// ParseLang accepts either a language code or a root directory name.
func ParseLang(s string) (Lang, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zh", "zh-hans", "zh_hans", "cn":
		return Chinese, nil
	case "en", "en-us", "english":
		return English, nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}

// TOCPath returns the repository-relative path of the language's table of
// contents.
func (l Lang) TOCPath() string {
	return l.Dir() + "/" + TOCFile
}

// Prefix returns the root directory with a trailing slash.
func (l Lang) Prefix() string {
	return l.Dir() + "/"
}

// LangOf returns the language whose root contains p.
func LangOf(p string) (Lang, error) {
	p = path.Clean(strings.TrimPrefix(p, "./"))
	for _, l := range Langs {
		if strings.HasPrefix(p, l.Prefix()) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotInTree, p)
}

// InTree reports whether p is under either language root.
func InTree(p string) bool {
	_, err := LangOf(p)
	return err == nil
}

// Sibling returns the path of p's counterpart in the other language and
// the language of p itself. Applying Sibling twice returns the original
// path.
func Sibling(p string) (string, Lang, error) {
	src, err := LangOf(p)
	if err != nil {
		return "", "", err
	}
	clean := path.Clean(strings.TrimPrefix(p, "./"))
	rel := strings.TrimPrefix(clean, src.Prefix())
	return src.Sibling().Prefix() + rel, src, nil
}

// IsDocument reports whether p is a markdown document that goes through
// translation. Everything else is copied verbatim.
func IsDocument(p string) bool {
	return strings.EqualFold(path.Ext(p), ".md")
}

// IsTOC reports whether p is one of the two table-of-contents files.
func IsTOC(p string) bool {
	p = path.Clean(p)
	for _, l := range Langs {
		if p == l.TOCPath() {
			return true
		}
	}
	return false
}
