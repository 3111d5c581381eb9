package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hepwiki/wikibot/internal/history"
)

func TestRunsPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf) // a buffer is not a terminal: no escape codes

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p.Runs([]history.Run{{
		StartedAt:               started,
		FinishedAt:              started.Add(90 * time.Second),
		Head:                    "0123456789abcdef",
		Author:                  "Alice <alice@example.org>",
		Outcome:                 history.Synced,
		AutoTranslated:          []string{"en/a.md"},
		ManualTranslationNeeded: []string{"zh-hans/b.md"},
		Error:                   "first\nsecond",
	}})

	out := buf.String()
	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "STARTED")
	assert.Contains(t, out, "01234567 ")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "auto-translated: en/a.md")
	assert.Contains(t, out, "manual:          zh-hans/b.md")
	assert.Contains(t, out, "error:           first\n")
	assert.NotContains(t, out, "second")
}

func TestRunsEmpty(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Runs(nil)
	assert.Equal(t, "no runs recorded\n", buf.String())
}

func TestLines(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	p.OK("built %s", "abc")
	p.Warn("careful")
	p.Fail("broken")
	p.KV("watermark", "abc")
	p.Counts(map[history.Outcome]int{history.Synced: 3, history.Fatal: 1})

	out := buf.String()
	assert.Contains(t, out, "✓ built abc\n")
	assert.Contains(t, out, "! careful\n")
	assert.Contains(t, out, "✗ broken\n")
	assert.Contains(t, out, "watermark      abc\n")
	assert.Contains(t, out, "synced       3\n")
	assert.Contains(t, out, "fatal        1\n")
}
