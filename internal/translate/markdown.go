package translate

import (
	"fmt"
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("(?s)```.*?```")

func placeholder(i int) string {
	return fmt.Sprintf("#B%05d#", i)
}

// ProtectCodeBlocks replaces every fenced code block with a numbered
// placeholder and returns the blocks in order.
func ProtectCodeBlocks(text string) (string, []string) {
	var blocks []string
	out := codeBlockRe.ReplaceAllStringFunc(text, func(block string) string {
		blocks = append(blocks, block)
		return placeholder(len(blocks) - 1)
	})
	return out, blocks
}

// RestoreCodeBlocks puts the blocks back. Some backends repeat a
// placeholder; the duplicate is dropped and the first occurrence is moved
// onto its own paragraph.
func RestoreCodeBlocks(text string, blocks []string) string {
	for i, block := range blocks {
		ph := placeholder(i)
		first := strings.Index(text, ph)
		last := strings.LastIndex(text, ph)
		if first >= 0 && last != first {
			text = text[:first] + "\n\n" + ph + text[first+len(ph):last] + text[last+len(ph):]
		}
		text = strings.Replace(text, ph, block, 1)
	}
	return text
}
