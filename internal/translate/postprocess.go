package translate

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/hepwiki/wikibot/internal/langtree"
)

// BannerTemplate is the note inserted at the top of auto-translated pages.
const BannerTemplate = "> [!NOTE|style:flat]\n> *This page is auto-translated by %s*.\n"

// PostProcess repairs backend output. banner, when non-empty, is inserted
// after a leading H1 or at the top of the page. Chinese output gets spaces
// between CJK and Latin runs.
func PostProcess(text string, dst langtree.Lang, banner string) string {
	text = FixMarkdown(text)
	if banner != "" {
		text = InsertBanner(text, banner)
	}
	if dst == langtree.Chinese {
		text = AddSpacesZh(text)
	}
	return norm.NFC.String(text)
}

var (
	// [text](url) written with full-width brackets or stray spaces,
	// optionally preceded by an image marker
	imageLinkRe = regexp.MustCompile(`([\n\s]+[!！]?)[ ]*[\[【](.*)[\]】][ ]*[\(（](.*)[\)）]`)
	plainLinkRe = regexp.MustCompile(`[\[【](.*)[\]】][ ]*[\(（](.*)[\)）]`)
	dotsSlashRe = regexp.MustCompile(`\.\.\.[ ]?/`)
	commentRe   = regexp.MustCompile(`<![ ]+--`)
	enumRe      = regexp.MustCompile(`(\d+\.)([>\s]+)(\d+\.)`)
	linkURLRe   = regexp.MustCompile(`\[.+\]\((.+)\)`)
)

// FixMarkdown repairs markdown syntax that translation backends tend to
// break.
func FixMarkdown(text string) string {
	text = imageLinkRe.ReplaceAllString(text, "${1}[${2}](${3})")
	text = plainLinkRe.ReplaceAllString(text, "[${1}](${2})")
	text = dotsSlashRe.ReplaceAllString(text, "../")
	text = commentRe.ReplaceAllString(text, "<!--")
	text = collapseDoubleBackticks(text)
	text = fixRepeatedEnumIndex(text)

	for _, m := range linkURLRe.FindAllStringSubmatch(text, -1) {
		link := m[1]
		if strings.Contains(link, " ") {
			text = strings.ReplaceAll(text, link, strings.ReplaceAll(link, " ", ""))
		}
	}
	return text
}

// collapseDoubleBackticks turns a run of exactly two backticks into one.
// Runs of one or of three and more are left alone.
func collapseDoubleBackticks(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		if text[i] != '`' {
			b.WriteByte(text[i])
			i++
			continue
		}
		j := i
		for j < len(text) && text[j] == '`' {
			j++
		}
		if j-i == 2 {
			b.WriteByte('`')
		} else {
			b.WriteString(text[i:j])
		}
		i = j
	}
	return b.String()
}

// fixRepeatedEnumIndex moves an enumerate index that was duplicated onto
// the end of the previous line: "1.\n1. item" becomes "\n1. item".
func fixRepeatedEnumIndex(text string) string {
	matches := enumRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		first, gap, second := text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]]
		if first != second {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(gap)
		b.WriteString(first)
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// InsertBanner places banner right after a leading level-one heading, or
// at the very top when the page does not start with one.
func InsertBanner(text, banner string) string {
	lines := strings.Split(text, "\n")
	head := strings.ReplaceAll(lines[0], " ", "")
	if strings.HasPrefix(head, "#") && !strings.HasPrefix(head, "##") {
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[0], "\n"+banner)
		out = append(out, lines[1:]...)
		return strings.Join(out, "\n")
	}
	return banner + "\n" + text
}

var (
	cjkThenLatinRe = regexp.MustCompile(`([\x{4e00}-\x{9fff}])([0-9a-zA-Z\x{00A0}-\x{024f}])`)
	latinThenCJKRe = regexp.MustCompile(`([0-9a-zA-Z\x{00A0}-\x{024f}])([\x{4e00}-\x{9fff}])`)
)

// AddSpacesZh inserts a space between adjacent CJK ideographs and Latin
// letters or digits, in both directions.
func AddSpacesZh(text string) string {
	text = cjkThenLatinRe.ReplaceAllString(text, "$1 $2")
	text = latinThenCJKRe.ReplaceAllString(text, "$1 $2")
	return text
}
