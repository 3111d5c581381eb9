package monitor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hepwiki/wikibot/internal/history"
	"github.com/hepwiki/wikibot/internal/langtree"
	"github.com/hepwiki/wikibot/internal/logging"
	"github.com/hepwiki/wikibot/internal/notify"
	"github.com/hepwiki/wikibot/internal/site"
	"github.com/hepwiki/wikibot/internal/vcs"
	"github.com/hepwiki/wikibot/internal/vcs/git"
	"github.com/hepwiki/wikibot/internal/watermark"
)

const zhSummary = "# 目录\n\n* [简介](README.md)\n* [栏目](bar.md)\n"
const enSummary = "# Summary\n\n* [Introduction](README.md)\n* [Bar](bar.md)\n"

var bot = vcs.Author{Name: "wikibot", Email: "wikibot@example.org"}

func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

func configure(t *testing.T, dir string) {
	t.Helper()
	gitRun(t, dir, "config", "user.name", "Test User")
	gitRun(t, dir, "config", "user.email", "test@example.com")
	gitRun(t, dir, "config", "commit.gpgsign", "false")
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for path, text := range files {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(text), 0644))
	}
}

// pushAs commits files in the developer clone under author and pushes.
func pushAs(t *testing.T, dir string, author vcs.Author, files map[string]string) vcs.CommitID {
	t.Helper()
	writeFiles(t, dir, files)
	gitRun(t, dir, "add", "--all")
	gitRun(t, dir, "commit", "-m", "edit", "--author="+author.String())
	gitRun(t, dir, "push", "origin", "HEAD:master")
	return vcs.CommitID(gitRun(t, dir, "rev-parse", "HEAD"))
}

// builder returns queued results, then success.
type builder struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (b *builder) Verify(_ context.Context, dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if len(b.results) == 0 {
		return nil
	}
	err := b.results[0]
	b.results = b.results[1:]
	return err
}

func (b *builder) fail(times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < times; i++ {
		b.results = append(b.results, &site.BuildError{Dir: "testarea", Log: "Error: broken link"})
	}
}

func (b *builder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type tagger struct{}

func (tagger) Name() string { return "tagger" }

func (tagger) Translate(_ context.Context, text string, src, dst langtree.Lang) (string, error) {
	return strings.ReplaceAll(text, "text", "translated text"), nil
}

type feed struct {
	mu    sync.Mutex
	runs  []history.Run
	marks []string
}

func (f *feed) RunStarted(string, string) {}

func (f *feed) RunFinished(run history.Run) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
}

func (f *feed) WatermarkMoved(commit string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, commit)
}

type fixture struct {
	dev     string
	test    *git.Git
	builder *builder
	mail    *notify.Recorder
	store   *watermark.Store
	feed    *feed
	history *history.DB
	monitor *Monitor
	seed    vcs.CommitID
}

// newFixture seeds a remote with both trees authored by the bot, clones a
// developer checkout and the monitored test area.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	base := t.TempDir()

	seed := filepath.Join(base, "seed")
	require.NoError(t, os.MkdirAll(seed, 0755))
	gitRun(t, seed, "init")
	gitRun(t, seed, "symbolic-ref", "HEAD", "refs/heads/master")
	configure(t, seed)
	writeFiles(t, seed, map[string]string{
		"zh-hans/SUMMARY.md": zhSummary,
		"en/SUMMARY.md":      enSummary,
		"zh-hans/README.md":  "# 简介\n",
		"en/README.md":       "# Introduction\n",
		"zh-hans/bar.md":     "# 栏目\n\ntext\n",
		"en/bar.md":          "# Bar\n\ntext\n",
	})
	gitRun(t, seed, "add", "--all")
	gitRun(t, seed, "commit", "-m", "initial", "--author="+bot.String())

	bare := filepath.Join(base, "remote.git")
	gitRun(t, base, "clone", "--bare", seed, bare)

	dev := filepath.Join(base, "dev")
	gitRun(t, base, "clone", bare, dev)
	configure(t, dev)

	test, err := git.Clone(ctx, bare, filepath.Join(base, "testarea"))
	require.NoError(t, err)
	configure(t, test.Root())

	f := &fixture{
		dev:     dev,
		test:    test,
		builder: &builder{},
		mail:    &notify.Recorder{},
		store:   watermark.New(filepath.Join(base, ".commit_success")),
		feed:    &feed{},
	}
	f.history, err = history.Open(filepath.Join(base, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.history.Close() })

	f.seed, err = test.Head(ctx)
	require.NoError(t, err)

	reporter := notify.Reporter{Prefix: "[bot] ", Links: notify.NewLinks("https://code.example.org", "git@code.example.org:hep/wiki.git")}
	f.monitor = New(test, f.builder, tagger{}, f.store, f.mail, reporter, Config{Bot: bot, Logger: logging.Discard()})
	f.monitor.History = f.history
	f.monitor.Feed = f.feed
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.monitor.Start(context.Background()))
}

func (f *fixture) subjects() []string {
	var out []string
	for _, m := range f.mail.Messages() {
		out = append(out, m.Subject)
	}
	return out
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.test.Root(), path))
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) lastRun(t *testing.T) history.Run {
	t.Helper()
	runs, err := f.history.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

var alice = vcs.Author{Name: "Alice", Email: "alice@example.org"}

func TestStartUsesValidHead(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	assert.Equal(t, f.seed, f.monitor.Watermark())
	assert.Equal(t, f.seed, f.monitor.LastSeen())
	persisted, err := f.store.Read()
	require.NoError(t, err)
	assert.Equal(t, f.seed, persisted)
	assert.Equal(t, Idle, f.monitor.State())
}

func TestStartFallsBackToWatermark(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Write("0000000000000000000000000000000000000001"))
	f.builder.fail(1)
	f.start(t)

	assert.Equal(t, vcs.CommitID("0000000000000000000000000000000000000001"), f.monitor.Watermark())
	assert.Equal(t, f.seed, f.monitor.LastSeen())
}

func TestStartWithoutAnyGoodCommit(t *testing.T) {
	f := newFixture(t)
	f.builder.fail(1)
	err := f.monitor.Start(context.Background())
	assert.ErrorIs(t, err, watermark.ErrNoWatermark)
}

func TestPollNothingNew(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	calls := f.builder.count()

	require.NoError(t, f.monitor.Poll(context.Background()))
	assert.Equal(t, calls, f.builder.count())
	assert.Empty(t, f.mail.Messages())
}

func TestModifyWithBotSiblingIsTranslated(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	head := pushAs(t, f.dev, alice, map[string]string{"en/bar.md": "# Bar\n\nnew text\n"})
	require.NoError(t, f.monitor.Poll(ctx))

	assert.Contains(t, f.read(t, "zh-hans/bar.md"), "new translated text")

	// the bot pushed its own commit on top of the human one
	botHead, err := f.test.Head(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, head, botHead)
	assert.Equal(t, botHead, f.monitor.Watermark())
	assert.Equal(t, botHead, f.monitor.LastSeen())
	author, err := f.test.AuthorOf(ctx, botHead)
	require.NoError(t, err)
	assert.Equal(t, bot.Name, author.Name)
	assert.Equal(t, "[bot] Auto-translation for commit "+string(head), gitRun(t, f.test.Root(), "log", "-1", "--format=%s"))

	clean, err := f.test.IsClean(ctx)
	require.NoError(t, err)
	assert.True(t, clean)

	msgs := f.mail.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Subject, "Built successfully")
	assert.Equal(t, []string{alice.String()}, msgs[0].To)
	assert.Contains(t, msgs[0].Body, "📙 Following files are auto-translated:\n\nzh-hans/bar.md")
	assert.Contains(t, msgs[0].Body, "I have made another submit")

	run := f.lastRun(t)
	assert.Equal(t, history.Synced, run.Outcome)
	assert.Equal(t, []string{"zh-hans/bar.md"}, run.AutoTranslated)
	assert.Equal(t, string(botHead), run.BotCommit)
	assert.Equal(t, alice.String(), run.Author)

	// the bot's own commit is not processed again
	calls := f.builder.count()
	require.NoError(t, f.monitor.Poll(ctx))
	assert.Equal(t, calls, f.builder.count())
}

func TestModifyWithHumanSiblingNeedsManualTranslation(t *testing.T) {
	f := newFixture(t)
	bob := vcs.Author{Name: "Bob", Email: "bob@example.org"}
	pushAs(t, f.dev, bob, map[string]string{"zh-hans/bar.md": "# 栏目\n\n人工翻译\n"})
	require.NoError(t, f.test.Pull(context.Background()))
	f.start(t)

	head := pushAs(t, f.dev, alice, map[string]string{"en/bar.md": "# Bar\n\nnew text\n"})
	require.NoError(t, f.monitor.Poll(context.Background()))

	assert.Equal(t, "# 栏目\n\n人工翻译\n", f.read(t, "zh-hans/bar.md"))
	assert.Equal(t, head, f.monitor.Watermark())

	msgs := f.mail.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "No files are auto-translated.")
	assert.Contains(t, msgs[0].Body, "⚠️ Following files may need manual translation:\n\nzh-hans/bar.md")
	assert.NotContains(t, msgs[0].Body, "I have made another submit")

	run := f.lastRun(t)
	assert.Equal(t, []string{"zh-hans/bar.md"}, run.ManualTranslationNeeded)
	assert.Empty(t, run.BotCommit)
}

func TestAddedDocumentWithoutSibling(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	head := pushAs(t, f.dev, alice, map[string]string{"zh-hans/foo.md": "# 新页面\n"})
	require.NoError(t, f.monitor.Poll(context.Background()))

	_, err := os.Stat(filepath.Join(f.test.Root(), "en/foo.md"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, head, f.monitor.Watermark())

	run := f.lastRun(t)
	assert.Equal(t, history.Synced, run.Outcome)
	assert.Empty(t, run.AutoTranslated)
	assert.Empty(t, run.ManualTranslationNeeded)
}

func TestFailedFileOperationIsReported(t *testing.T) {
	f := newFixture(t)
	// a plain file where the sibling directory of a new asset must go
	pushAs(t, f.dev, bot, map[string]string{"zh-hans/img": "not a directory\n"})
	require.NoError(t, f.test.Pull(context.Background()))
	f.start(t)

	head := pushAs(t, f.dev, alice, map[string]string{
		"en/img/logo.png": "png",
		"en/bar.md":       "# Bar\n\nnew text\n",
	})
	require.NoError(t, f.monitor.Poll(context.Background()))

	// the other file is still synchronized
	assert.Contains(t, f.read(t, "zh-hans/bar.md"), "new translated text")

	var problems []notify.Message
	for _, m := range f.mail.Messages() {
		if strings.Contains(m.Subject, "Wikibot detect error") {
			problems = append(problems, m)
		}
	}
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Subject, "failed to synchronize en/img/logo.png to zh-hans/img/logo.png")
	assert.Contains(t, problems[0].Body, string(head))
	assert.Contains(t, f.subjects()[len(f.subjects())-1], "Built successfully")
	assert.Equal(t, history.Synced, f.lastRun(t).Outcome)
}

func TestBuildFailureKeepsWatermark(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	head := pushAs(t, f.dev, alice, map[string]string{"en/bar.md": "# Bar\n\n[broken](nowhere.md)\n"})
	f.builder.fail(1)
	require.NoError(t, f.monitor.Poll(ctx))

	assert.Equal(t, f.seed, f.monitor.Watermark())
	assert.Equal(t, head, f.monitor.LastSeen())
	persisted, err := f.store.Read()
	require.NoError(t, err)
	assert.Equal(t, f.seed, persisted)

	msgs := f.mail.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Subject, "Problem detected")
	assert.Contains(t, msgs[0].Body, "Error: broken link")
	assert.True(t, msgs[0].CCAdmin)
	assert.Equal(t, history.BuildFailed, f.lastRun(t).Outcome)

	// same head: no rebuild
	calls := f.builder.count()
	require.NoError(t, f.monitor.Poll(ctx))
	assert.Equal(t, calls, f.builder.count())
	assert.Len(t, f.mail.Messages(), 1)

	// the fix is diffed against the last good commit
	pushAs(t, f.dev, alice, map[string]string{"en/bar.md": "# Bar\n\nfixed text\n"})
	require.NoError(t, f.monitor.Poll(ctx))
	assert.Contains(t, f.read(t, "zh-hans/bar.md"), "fixed translated text")
	assert.NotEqual(t, f.seed, f.monitor.Watermark())
}

func TestBothSummariesInconsistent(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	pushAs(t, f.dev, alice, map[string]string{
		"zh-hans/SUMMARY.md": "# 目录\n\n* [栏目](bar.md)\n* [简介](README.md)\n",
		"en/SUMMARY.md":      "# Summary\n\n* [Introduction](README.md)\n* [Bar](bar.md)\n* [Baz](baz.md)\n",
	})
	require.NoError(t, f.monitor.Poll(context.Background()))

	assert.Equal(t, f.seed, f.monitor.Watermark())
	msgs := f.mail.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "modified both SUMMARY.md")
	assert.Contains(t, msgs[0].Body, "/-/raw/")
	assert.Equal(t, history.Inconsistent, f.lastRun(t).Outcome)
}

func TestSummaryEditIsMirrored(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	pushAs(t, f.dev, alice, map[string]string{
		"en/SUMMARY.md": "# Summary\n\n* [Bar](bar.md)\n* [Introduction](README.md)\n",
	})
	require.NoError(t, f.monitor.Poll(context.Background()))

	assert.Equal(t, "# 目录\n\n* [栏目](bar.md)\n* [简介](README.md)\n", f.read(t, "zh-hans/SUMMARY.md"))
	assert.Contains(t, f.lastRun(t).AutoTranslated, "zh-hans/SUMMARY.md")
}

func TestBotEditsBreakingBuildIsFatal(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	remoteBefore := gitRun(t, f.dev, "ls-remote", "origin", "refs/heads/master")
	pushAs(t, f.dev, alice, map[string]string{"en/bar.md": "# Bar\n\nnew text\n"})
	remoteAfterHuman := gitRun(t, f.dev, "ls-remote", "origin", "refs/heads/master")
	require.NotEqual(t, remoteBefore, remoteAfterHuman)

	// first build passes, the rebuild after the bot's edits fails
	f.builder.mu.Lock()
	f.builder.results = []error{nil, &site.BuildError{Dir: "testarea", Log: "bot broke it"}}
	f.builder.mu.Unlock()

	err := f.monitor.Poll(ctx)
	var fatal *FatalError
	require.True(t, errors.As(err, &fatal), "got %v", err)

	assert.Equal(t, f.seed, f.monitor.Watermark())
	assert.Equal(t, remoteAfterHuman, gitRun(t, f.dev, "ls-remote", "origin", "refs/heads/master"))
	assert.Equal(t, history.Fatal, f.lastRun(t).Outcome)

	subjects := f.subjects()
	require.Len(t, subjects, 1)
	assert.Contains(t, subjects[0], "Wikibot detect error: Cannot build successfully after the bot's edits")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for f.monitor.Watermark() == "" {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()

	assert.NoError(t, f.monitor.Run(ctx))
	f.feed.mu.Lock()
	defer f.feed.mu.Unlock()
	assert.Equal(t, []string{string(f.seed)}, f.feed.marks)
}
