// Package supervisor keeps the bot's long-running workers alive in the
// sense that matters for operators: it launches them, watches for them to
// halt and mails a diagnostic once per halted worker.
//
// Workers talk to the supervisor only through events. A worker reports
// Started once it is actually executing; returning from Keep is the single
// Halted event, carrying the tail of the worker's output.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hepwiki/wikibot/internal/notify"
)

// DefaultPollInterval is how often worker state is examined.
const DefaultPollInterval = 10 * time.Second

// State is the lifecycle position of a worker.
type State string

const (
	Starting State = "starting"
	Running  State = "running"
	Halted   State = "halted"
)

// Reporter is handed to a worker so it can confirm it is running.
type Reporter interface {
	Started(pid int)
}

// Worker is one long-lived task. Keep must only return when the worker
// can no longer do its job.
type Worker interface {
	Name() string
	Keep(ctx context.Context, r Reporter) error
}

// HaltError carries the diagnostic tail of a halted worker.
type HaltError struct {
	Err  error
	Tail string
}

func (e *HaltError) Error() string {
	if e.Err == nil {
		return "worker halted"
	}
	return e.Err.Error()
}

func (e *HaltError) Unwrap() error {
	return e.Err
}

// Record is the supervisor's view of one worker.
type Record struct {
	Name      string
	PID       int
	State     State
	ErrorTail string
	// Notified is set once the halt mail went out.
	Notified bool
}

type eventKind int

const (
	eventStarted eventKind = iota
	eventHalted
)

type event struct {
	name string
	kind eventKind
	pid  int
	tail string
}

// Config holds supervisor settings.
type Config struct {
	// PollInterval between state checks (default: DefaultPollInterval)
	PollInterval time.Duration

	// Logger for supervisor activity
	Logger *slog.Logger
}

// Supervisor owns the worker records.
type Supervisor struct {
	notifier notify.Notifier
	config   Config

	events chan event

	mu      sync.Mutex
	records map[string]*Record
	order   []string

	wg sync.WaitGroup
}

// New creates a supervisor reporting through notifier.
func New(notifier notify.Notifier, config Config) *Supervisor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.Logger = config.Logger.With("component", "supervisor")

	return &Supervisor{
		notifier: notifier,
		config:   config,
		events:   make(chan event, 16),
		records:  make(map[string]*Record),
	}
}

type reporter struct {
	name   string
	events chan<- event
}

func (r reporter) Started(pid int) {
	r.events <- event{name: r.name, kind: eventStarted, pid: pid}
}

// Launch records w as Starting and runs it in its own goroutine. The PID
// stays unset until the worker reports Started.
func (s *Supervisor) Launch(ctx context.Context, w Worker) {
	name := w.Name()

	s.mu.Lock()
	if _, ok := s.records[name]; !ok {
		s.order = append(s.order, name)
	}
	s.records[name] = &Record{Name: name, State: Starting}
	s.mu.Unlock()

	s.config.Logger.Info("launching worker", "worker", name)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := w.Keep(ctx, reporter{name: name, events: s.events})
		s.events <- event{name: name, kind: eventHalted, tail: haltTail(err)}
	}()
}

func haltTail(err error) string {
	var halt *HaltError
	switch {
	case errors.As(err, &halt) && halt.Tail != "":
		return halt.Tail
	case err != nil:
		return err.Error()
	default:
		return "worker returned without an error"
	}
}

// Records returns a snapshot of every worker record in launch order.
func (s *Supervisor) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.records[name])
	}
	return out
}

func (s *Supervisor) apply(ev event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[ev.name]
	if !ok {
		return
	}
	switch ev.kind {
	case eventStarted:
		rec.PID = ev.pid
		rec.State = Running
		rec.ErrorTail = ""
		s.config.Logger.Info("worker running", "worker", ev.name, "pid", ev.pid)
	case eventHalted:
		rec.State = Halted
		rec.ErrorTail = ev.tail
		s.config.Logger.Error("worker halted", "worker", ev.name, "pid", rec.PID)
	}
}

func (s *Supervisor) drain() {
	for {
		select {
		case ev := <-s.events:
			s.apply(ev)
		default:
			return
		}
	}
}

// MonitorAll polls the workers until all of them halted or ctx is done.
// Each halted worker triggers exactly one notification; once none is left
// the final escalation is sent and MonitorAll returns.
func (s *Supervisor) MonitorAll(ctx context.Context) error {
	if len(s.Records()) == 0 {
		return errors.New("no workers launched")
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.config.Logger.Info("supervisor stopping")
			return nil
		case <-ticker.C:
		}

		s.drain()
		if s.check(ctx) {
			s.send(ctx, notify.AllHalted())
			s.config.Logger.Error("all workers are halted")
			return nil
		}
	}
}

// check mails new halts and reports whether every worker is halted.
func (s *Supervisor) check(ctx context.Context) bool {
	var pending []notify.Message
	all := true

	s.mu.Lock()
	for _, name := range s.order {
		rec := s.records[name]
		if rec.State != Halted {
			all = false
			continue
		}
		if !rec.Notified {
			rec.Notified = true
			pending = append(pending, notify.Halted(rec.Name, rec.PID, rec.ErrorTail))
		}
	}
	s.mu.Unlock()

	for _, msg := range pending {
		s.send(ctx, msg)
	}
	return all
}

func (s *Supervisor) send(ctx context.Context, msg notify.Message) {
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.config.Logger.Error("failed to send mail", "subject", msg.Subject, "error", err)
	}
}

// Wait blocks until every launched worker returned.
func (s *Supervisor) Wait() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			s.drain()
			return
		case ev := <-s.events:
			s.apply(ev)
		}
	}
}
