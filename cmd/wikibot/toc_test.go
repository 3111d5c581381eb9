package main

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hepwiki/wikibot/internal/ui"
)

func writeSummaries(t *testing.T, fsys afero.Fs, zh, en string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, "zh-hans/SUMMARY.md", []byte(zh), 0644))
	require.NoError(t, afero.WriteFile(fsys, "en/SUMMARY.md", []byte(en), 0644))
}

func TestReportConsistency(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeSummaries(t, fsys,
		"# 目录\n\n* [介绍](README.md)\n  * [工具](tools/root.md)\n",
		"# Summary\n\n* [Introduction](README.md)\n  * [Tools](tools/root.md)\n")

	var buf bytes.Buffer
	assert.True(t, reportConsistency(ui.New(&buf), fsys))
	assert.Contains(t, buf.String(), "consistent")
}

func TestReportInconsistency(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeSummaries(t, fsys,
		"# 目录\n\n* [介绍](README.md)\n",
		"# Summary\n\n* [Introduction](README.md)\n  * [Tools](tools/root.md)\n")

	var buf bytes.Buffer
	assert.False(t, reportConsistency(ui.New(&buf), fsys))
	assert.Contains(t, buf.String(), "inconsistent")
}

func TestReportConsistencyMissingFile(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, reportConsistency(ui.New(&buf), afero.NewMemMapFs()))
}
