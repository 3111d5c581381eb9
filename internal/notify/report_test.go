package notify

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/hepwiki/wikibot/internal/vcs"
)

var (
	reporter = Reporter{
		Prefix: "[bot] ",
		Links:  NewLinks("https://code.example.org/", "git@code.example.org:hep/wiki.git"),
	}
	alice = vcs.Author{Name: "Alice", Email: "alice@example.org"}
	head  = vcs.CommitID("0123456789abcdef0123")
)

func render(m Message) []byte {
	return []byte(fmt.Sprintf("Subject: %s\nTo: %s\nCC admin: %t\n\n%s",
		m.Subject, strings.Join(m.To, ", "), m.CCAdmin, m.Body))
}

func assertGolden(t *testing.T, name string, m Message) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, render(m))
}

func TestNewLinks(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"git@code.example.org:hep/wiki.git", "hep/wiki"},
		{"https://code.example.org/hep/wiki.git", "hep/wiki"},
		{"ssh://git@code.example.org:2222/hep/wiki.git", "hep/wiki"},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			assert.Equal(t, tt.want, NewLinks("https://x", tt.remote).Project)
		})
	}
}

func TestLinks(t *testing.T) {
	assert.Equal(t, "https://code.example.org/hep/wiki/-/commit/abc", reporter.Links.Commit("abc"))
	assert.Equal(t, "https://code.example.org/hep/wiki/-/raw/abc/en/SUMMARY.md", reporter.Links.Raw("abc", "en/SUMMARY.md"))
}

func TestBuildFailureReport(t *testing.T) {
	assertGolden(t, "build_failure", reporter.BuildFailure(alice, head, "error: page not found\nbuild aborted"))
}

func TestInconsistencyReport(t *testing.T) {
	assertGolden(t, "inconsistency", reporter.Inconsistency(alice, head, reporter.TOCLinks(head)))
}

func TestSuccessReport(t *testing.T) {
	assertGolden(t, "success", reporter.Success(Success{
		Author: alice,
		Head:   head,
		Diff: []vcs.DiffEntry{
			{Kind: vcs.Modified, Path: "zh-hans/a.md"},
			{Kind: vcs.Renamed, Similarity: 90, OldPath: "en/old.md", Path: "en/new.md"},
		},
		AutoTranslated:          []string{"en/a.md"},
		ManualTranslationNeeded: []string{"zh-hans/new.md"},
		BotCommit:               "fedcba9876543210",
		BotDiff: []vcs.DiffEntry{
			{Kind: vcs.Modified, Path: "en/a.md"},
			{Kind: vcs.Renamed, Similarity: 90, OldPath: "zh-hans/old.md", Path: "zh-hans/new.md"},
		},
	}))
}

func TestSuccessReportNothingToDo(t *testing.T) {
	assertGolden(t, "success_quiet", reporter.Success(Success{
		Author: alice,
		Head:   head,
		Diff:   []vcs.DiffEntry{{Kind: vcs.Added, Path: "zh-hans/foo.md"}},
	}))
}

func TestHaltReports(t *testing.T) {
	m := Halted("monitor", 4242, "panic: boom")
	assert.Equal(t, "Wiki error: process 'monitor' (PID: 4242) is halted", m.Subject)
	assert.Equal(t, "panic: boom", m.Body)
	assert.Empty(t, m.To)

	assert.Equal(t, "End of class: all processes are halted", AllHalted().Body)
}

func TestProblemSubjectUsesFirstLine(t *testing.T) {
	m := reporter.Problem("cannot patch en/SUMMARY.md\ndetails")
	assert.Equal(t, "[bot] Wikibot detect error: cannot patch en/SUMMARY.md", m.Subject)
	assert.Equal(t, "cannot patch en/SUMMARY.md\ndetails", m.Body)
}

func TestZeroAuthorGoesToAdmins(t *testing.T) {
	m := reporter.BuildFailure(vcs.Author{}, head, "log")
	assert.Empty(t, m.To)
	assert.True(t, m.CCAdmin)
}
