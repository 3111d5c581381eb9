// Package monitor runs the test-area worker: it polls the remote branch,
// verifies that every new head builds, synchronizes the two language trees
// and reports the outcome by mail.
//
// One iteration moves through the states
//
//	Idle -> Syncing -> ReportingFailure -> Idle
//	Idle -> Syncing -> ReportingSuccess -> Idle
//
// The success watermark only advances after a head built, its tables of
// contents agreed and the bot's own edits (if any) were pushed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/hepwiki/wikibot/internal/dualsync"
	"github.com/hepwiki/wikibot/internal/history"
	"github.com/hepwiki/wikibot/internal/langtree"
	"github.com/hepwiki/wikibot/internal/notify"
	"github.com/hepwiki/wikibot/internal/site"
	"github.com/hepwiki/wikibot/internal/toc"
	"github.com/hepwiki/wikibot/internal/translate"
	"github.com/hepwiki/wikibot/internal/vcs"
	"github.com/hepwiki/wikibot/internal/watermark"
)

// DefaultPollInterval is how often the remote branch is checked.
const DefaultPollInterval = 10 * time.Second

// State is the position of the monitor in its iteration.
type State string

const (
	Idle             State = "idle"
	Syncing          State = "syncing"
	ReportingFailure State = "reporting-failure"
	ReportingSuccess State = "reporting-success"
)

// FatalError stops the worker. It is returned when the bot's own edits
// broke the build or could not be pushed.
type FatalError struct {
	Head vcs.CommitID
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error while syncing %s: %v", e.Head.Short(), e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Builder verifies that a working tree builds. *site.Site implements it;
// a failed build is reported as *site.BuildError.
type Builder interface {
	Verify(ctx context.Context, dir string) error
}

// Recorder stores finished iterations. *history.DB implements it.
type Recorder interface {
	Record(ctx context.Context, run *history.Run) error
}

// Publisher receives iteration events. *statusfeed.Server implements it.
type Publisher interface {
	RunStarted(runID, head string)
	RunFinished(run history.Run)
	WatermarkMoved(commit string)
}

// Config holds monitor settings.
type Config struct {
	// PollInterval between remote checks (default: DefaultPollInterval)
	PollInterval time.Duration

	// Bot is the identity of the bot's commits. Its name decides whether a
	// sibling may be overwritten by a machine translation.
	Bot vcs.Author

	// Banner inserts the auto-translation note into translated pages
	Banner bool

	// Logger for monitor activity
	Logger *slog.Logger
}

// Monitor is the test-area worker.
type Monitor struct {
	repo       vcs.Repository
	fs         afero.Fs
	site       Builder
	translator translate.Translator
	store      *watermark.Store
	notifier   notify.Notifier
	reporter   notify.Reporter
	config     Config

	// WorkArea, when set, is pulled after every successful sync so the
	// served site follows the test area.
	WorkArea vcs.Repository

	// History and Feed are optional.
	History Recorder
	Feed    Publisher

	mu        sync.RWMutex
	state     State
	lastSeen  vcs.CommitID
	watermark vcs.CommitID

	// failedHead suppresses repeated problem mails for the same head.
	failedHead vcs.CommitID
}

// New creates a monitor over repo. The working tree is accessed through
// an afero filesystem rooted at repo.Root().
func New(repo vcs.Repository, builder Builder, tr translate.Translator, store *watermark.Store,
	notifier notify.Notifier, reporter notify.Reporter, config Config) *Monitor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.Logger = config.Logger.With("component", "monitor")

	return &Monitor{
		repo:       repo,
		fs:         afero.NewBasePathFs(afero.NewOsFs(), repo.Root()),
		site:       builder,
		translator: tr,
		store:      store,
		notifier:   notifier,
		reporter:   reporter,
		config:     config,
		state:      Idle,
	}
}

// WithFs replaces the filesystem used for the working tree.
func (m *Monitor) WithFs(fsys afero.Fs) *Monitor {
	m.fs = fsys
	return m
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastSeen returns the last head the monitor processed.
func (m *Monitor) LastSeen() vcs.CommitID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeen
}

// Watermark returns the current success watermark.
func (m *Monitor) Watermark() vcs.CommitID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watermark
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev != s {
		m.config.Logger.Debug("state change", "from", string(prev), "to", string(s))
	}
}

// Run starts the monitor and polls until ctx is done or a *FatalError
// occurs. Iteration errors are logged and reported to the admins; the
// next poll retries.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	m.config.Logger.Info("monitoring remote", "interval", m.config.PollInterval, "head", m.LastSeen().Short())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.config.PollInterval):
		}

		if err := m.Poll(ctx); err != nil {
			var fatal *FatalError
			if errors.As(err, &fatal) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			m.config.Logger.Error("iteration failed", "error", err)
		}
	}
}

// Start establishes the watermark. When the checked out head builds and
// its tables of contents agree it becomes the watermark; otherwise the
// persisted one is used.
func (m *Monitor) Start(ctx context.Context) error {
	head, err := m.repo.Head(ctx)
	if err != nil {
		return fmt.Errorf("failed to read head: %w", err)
	}

	good, err := m.validates(ctx)
	if err != nil {
		return err
	}

	mark := head
	if !good {
		m.config.Logger.Warn("current head does not validate, reading last success watermark", "head", head.Short())
		if mark, err = m.store.Read(); err != nil {
			return fmt.Errorf("no known good commit to start from: %w", err)
		}
	}
	if err := m.store.Write(mark); err != nil {
		return fmt.Errorf("failed to persist watermark: %w", err)
	}

	m.mu.Lock()
	m.lastSeen = head
	m.watermark = mark
	m.mu.Unlock()

	m.config.Logger.Info("watermark established", "watermark", mark.Short(), "head", head.Short())
	if m.Feed != nil {
		m.Feed.WatermarkMoved(string(mark))
	}
	return nil
}

// validates reports whether the working tree builds with consistent
// tables of contents.
func (m *Monitor) validates(ctx context.Context) (bool, error) {
	err := m.site.Verify(ctx, m.repo.Root())
	var buildErr *site.BuildError
	switch {
	case errors.As(err, &buildErr):
		return false, nil
	case err != nil:
		return false, err
	}

	ok, err := toc.CheckConsistency(m.fs)
	if err != nil {
		m.config.Logger.Warn("failed to check tables of contents", "error", err)
		return false, nil
	}
	return ok, nil
}

// Poll checks the remote once and processes a new head.
func (m *Monitor) Poll(ctx context.Context) error {
	commits, err := m.repo.ListCommits(ctx, 1, true)
	if err != nil {
		return fmt.Errorf("failed to list remote commits: %w", err)
	}
	if len(commits) == 0 {
		return errors.New("remote branch has no commits")
	}

	remote := commits[0]
	if remote == m.LastSeen() {
		return nil
	}
	return m.process(ctx, remote)
}

func (m *Monitor) process(ctx context.Context, remote vcs.CommitID) error {
	run := &history.Run{
		ID:        history.NewRunID(),
		StartedAt: time.Now(),
		Head:      string(remote),
		Watermark: string(m.Watermark()),
	}
	if m.Feed != nil {
		m.Feed.RunStarted(run.ID, run.Head)
	}

	err := m.sync(ctx, remote, run)
	m.setState(Idle)

	run.FinishedAt = time.Now()
	if err != nil {
		run.Error = err.Error()
		var fatal *FatalError
		if errors.As(err, &fatal) {
			run.Outcome = history.Fatal
		} else {
			run.Outcome = history.Failed
			m.reportProblem(ctx, remote, err.Error())
		}
	}
	m.record(ctx, run)
	return err
}

func (m *Monitor) sync(ctx context.Context, remote vcs.CommitID, run *history.Run) error {
	m.setState(Syncing)
	logger := m.config.Logger.With("head", remote.Short())

	if err := m.repo.Pull(ctx); err != nil {
		return fmt.Errorf("failed to pull %s: %w", remote.Short(), err)
	}
	m.mu.Lock()
	m.lastSeen = remote
	m.mu.Unlock()
	logger.Info("new commits pulled", "watermark", m.Watermark().Short())

	author, err := m.repo.AuthorOf(ctx, remote)
	if err != nil {
		logger.Warn("failed to get commit author", "error", err)
	}
	run.Author = author.String()

	err = m.site.Verify(ctx, m.repo.Root())
	var buildErr *site.BuildError
	switch {
	case errors.As(err, &buildErr):
		m.setState(ReportingFailure)
		run.Outcome = history.BuildFailed
		logger.Warn("head does not build")
		m.send(ctx, m.reporter.BuildFailure(author, remote, buildErr.Log))
		return nil
	case err != nil:
		return err
	}

	rng := vcs.Range(m.Watermark(), remote)
	diff, err := m.repo.DiffTree(ctx, rng)
	if err != nil {
		return fmt.Errorf("failed to diff %s: %w", rng, err)
	}
	logger.Info("tree diff", "range", rng, "entries", len(diff))
	for _, e := range diff {
		logger.Debug("diff entry", "entry", e.String())
	}

	// Tables of contents first: an inconsistency blocks everything.
	tocSyncer := &toc.Syncer{Fs: m.fs, Repo: m.repo, Translator: m.translator, Logger: logger}
	tocOut, err := tocSyncer.Sync(ctx, rng, diff, m.reporter.TOCLinks(remote)...)
	var consistency *toc.ConsistencyError
	switch {
	case errors.As(err, &consistency):
		m.setState(ReportingFailure)
		run.Outcome = history.Inconsistent
		logger.Warn("tables of contents are inconsistent", "edited", len(tocOut.Edited), "detail", consistency.Detail)
		if len(tocOut.Edited) == len(langtree.Langs) {
			m.send(ctx, m.reporter.Inconsistency(author, remote, consistency.Links))
		} else {
			m.send(ctx, m.reporter.Problem(fmt.Sprintf(
				"In commit %s: nothing changed to lang/SUMMARY.md but inconsistency detected.\n\n%s", remote, consistency.Detail)))
		}
		return nil
	case err != nil && len(tocOut.ManualTranslationNeeded) > 0:
		m.send(ctx, m.reporter.Problem(fmt.Sprintf(
			"In commit %s: Bot failed to modify the sibling SUMMARY.md file. Please fix this manually.\n\n%v", remote, err)))
	case err != nil:
		return fmt.Errorf("table of contents sync failed: %w", err)
	}

	engine := &dualsync.Engine{
		Fs:         m.fs,
		Repo:       m.repo,
		Translator: m.translator,
		BotName:    m.config.Bot.Name,
		Banner:     m.config.Banner,
		Logger:     logger,
	}
	res := engine.Sync(ctx, diff)
	for _, d := range res.Decisions {
		// failed translations are listed as manual work in the report
		if d.Err == nil || errors.Is(d.Err, translate.ErrTranslation) {
			continue
		}
		var integrity *dualsync.IntegrityError
		if errors.As(d.Err, &integrity) {
			m.send(ctx, m.reporter.Problem(fmt.Sprintf("In commit %s: %s %s", remote, integrity.Path, integrity.Detail)))
			continue
		}
		m.send(ctx, m.reporter.Problem(fmt.Sprintf(
			"In commit %s: failed to synchronize %s to %s. Please fix this manually.\n\n%v", remote, d.Entry.Path, d.Sibling, d.Err)))
	}

	run.AutoTranslated = append(append([]string{}, tocOut.AutoTranslated...), res.AutoTranslated...)
	run.ManualTranslationNeeded = append(append([]string{}, tocOut.ManualTranslationNeeded...), res.ManualTranslationNeeded...)

	clean, err := m.repo.IsClean(ctx)
	if err != nil {
		return fmt.Errorf("failed to check working tree: %w", err)
	}
	if !clean {
		if err := m.site.Verify(ctx, m.repo.Root()); err != nil {
			text := "Cannot build successfully after the bot's edits. Will stop here."
			if errors.As(err, &buildErr) {
				text += "\n\n" + buildErr.Log
			}
			m.send(ctx, m.reporter.Problem(text))
			return &FatalError{Head: remote, Err: err}
		}
		message := fmt.Sprintf("%sAuto-translation for commit %s", m.reporter.Prefix, remote)
		if err := m.repo.CommitAndPush(ctx, message, m.config.Bot); err != nil {
			return &FatalError{Head: remote, Err: err}
		}
	}

	head, err := m.repo.Head(ctx)
	if err != nil {
		return fmt.Errorf("failed to read head: %w", err)
	}

	success := notify.Success{
		Author:                  author,
		Head:                    remote,
		Diff:                    diff,
		AutoTranslated:          run.AutoTranslated,
		ManualTranslationNeeded: run.ManualTranslationNeeded,
	}
	if !clean {
		success.BotCommit = head
		run.BotCommit = string(head)
		if success.BotDiff, err = m.repo.DiffTree(ctx, vcs.Range(remote, head)); err != nil {
			logger.Warn("failed to diff bot commit", "error", err)
		}
	}

	if err := m.advance(head); err != nil {
		return err
	}

	m.setState(ReportingSuccess)
	run.Outcome = history.Synced
	logger.Info("synchronized",
		"watermark", head.Short(),
		"auto_translated", strings.Join(run.AutoTranslated, ","),
		"manual", strings.Join(run.ManualTranslationNeeded, ","))
	m.send(ctx, m.reporter.Success(success))

	if m.WorkArea != nil {
		if err := m.WorkArea.Pull(ctx); err != nil {
			logger.Warn("failed to pull work area", "error", err)
		}
	}
	return nil
}

// advance persists head as the new watermark. The bot's own commit is
// also marked as seen so it is not processed again.
func (m *Monitor) advance(head vcs.CommitID) error {
	if err := m.store.Write(head); err != nil {
		return fmt.Errorf("failed to persist watermark: %w", err)
	}
	m.mu.Lock()
	m.watermark = head
	m.lastSeen = head
	m.mu.Unlock()
	if m.Feed != nil {
		m.Feed.WatermarkMoved(string(head))
	}
	return nil
}

func (m *Monitor) send(ctx context.Context, msg notify.Message) {
	if err := m.notifier.Notify(ctx, msg); err != nil {
		m.config.Logger.Error("failed to send mail", "subject", msg.Subject, "error", err)
	}
}

func (m *Monitor) reportProblem(ctx context.Context, head vcs.CommitID, text string) {
	m.mu.Lock()
	repeated := m.failedHead == head
	m.failedHead = head
	m.mu.Unlock()
	if repeated {
		return
	}
	m.send(ctx, m.reporter.Problem(fmt.Sprintf("In commit %s: %s", head, text)))
}

func (m *Monitor) record(ctx context.Context, run *history.Run) {
	if m.History != nil {
		if err := m.History.Record(ctx, run); err != nil {
			m.config.Logger.Warn("failed to record run", "error", err)
		}
	}
	if m.Feed != nil {
		m.Feed.RunFinished(*run)
	}
}
