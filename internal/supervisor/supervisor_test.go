package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hepwiki/wikibot/internal/logging"
	"github.com/hepwiki/wikibot/internal/notify"
)

// fakeWorker reports Started and then blocks until released.
type fakeWorker struct {
	name    string
	pid     int
	release chan error
}

func newFakeWorker(name string, pid int) *fakeWorker {
	return &fakeWorker{name: name, pid: pid, release: make(chan error, 1)}
}

func (w *fakeWorker) Name() string { return w.name }

func (w *fakeWorker) Keep(ctx context.Context, r Reporter) error {
	r.Started(w.pid)
	select {
	case err := <-w.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recordingReporter collects Started calls.
type recordingReporter struct {
	mu   sync.Mutex
	pids []int
}

func (r *recordingReporter) Started(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pids = append(r.pids, pid)
}

func newSupervisor(mail notify.Notifier) *Supervisor {
	return New(mail, Config{PollInterval: 10 * time.Millisecond, Logger: logging.Discard()})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMonitorAllNotifiesEachHaltOnce(t *testing.T) {
	mail := &notify.Recorder{}
	s := newSupervisor(mail)
	ctx := context.Background()

	builder := newFakeWorker("builder", 101)
	monitor := newFakeWorker("monitor", 202)
	s.Launch(ctx, builder)
	s.Launch(ctx, monitor)

	done := make(chan error, 1)
	go func() { done <- s.MonitorAll(ctx) }()

	waitFor(t, func() bool {
		recs := s.Records()
		return recs[0].State == Running && recs[1].State == Running
	})
	assert.Equal(t, 101, s.Records()[0].PID)

	builder.release <- &HaltError{Err: errors.New("exit status 1"), Tail: "serve crashed"}
	waitFor(t, func() bool { return len(mail.Messages()) == 1 })

	// several more polls happen before the second worker stops
	time.Sleep(50 * time.Millisecond)
	require.Len(t, mail.Messages(), 1)
	msg := mail.Messages()[0]
	assert.Equal(t, "Wiki error: process 'builder' (PID: 101) is halted", msg.Subject)
	assert.Equal(t, "serve crashed", msg.Body)

	monitor.release <- errors.New("fatal error while syncing")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("MonitorAll did not return after all workers halted")
	}

	msgs := mail.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Wiki error: process 'monitor' (PID: 202) is halted", msgs[1].Subject)
	assert.Equal(t, "fatal error while syncing", msgs[1].Body)
	assert.Equal(t, notify.AllHalted(), msgs[2])

	for _, rec := range s.Records() {
		assert.Equal(t, Halted, rec.State)
		assert.True(t, rec.Notified)
	}
}

func TestLaunchStartsUnconfirmed(t *testing.T) {
	s := newSupervisor(&notify.Recorder{})
	w := &blockingWorker{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Launch(ctx, w)
	recs := s.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, Starting, recs[0].State)
	assert.Zero(t, recs[0].PID)

	cancel()
	s.Wait()
	assert.Equal(t, Halted, s.Records()[0].State)
}

// blockingWorker never reports Started.
type blockingWorker struct{}

func (w *blockingWorker) Name() string { return "blocked" }

func (w *blockingWorker) Keep(ctx context.Context, _ Reporter) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestMonitorAllStopsWithContext(t *testing.T) {
	mail := &notify.Recorder{}
	s := newSupervisor(mail)
	ctx, cancel := context.WithCancel(context.Background())

	w := newFakeWorker("builder", 1)
	defer func() { w.release <- nil }()
	s.Launch(context.Background(), w)
	cancel()
	require.NoError(t, s.MonitorAll(ctx))
	assert.Empty(t, mail.Messages())
}

func TestMonitorAllWithoutWorkers(t *testing.T) {
	s := newSupervisor(&notify.Recorder{})
	assert.Error(t, s.MonitorAll(context.Background()))
}

func TestHaltTail(t *testing.T) {
	assert.Equal(t, "tail", haltTail(&HaltError{Err: errors.New("x"), Tail: "tail"}))
	assert.Equal(t, "x", haltTail(&HaltError{Err: errors.New("x")}))
	assert.Equal(t, "plain", haltTail(errors.New("plain")))
	assert.Equal(t, "worker returned without an error", haltTail(nil))
}

func TestTail(t *testing.T) {
	tail := NewTail(3)
	assert.Equal(t, "", tail.String())
	tail.Add("a")
	tail.Add("b")
	assert.Equal(t, "a\nb", tail.String())
	tail.Add("c")
	tail.Add("d")
	tail.Add("e")
	assert.Equal(t, "c\nd\ne", tail.String())

	n, err := tail.Write([]byte("f\ng"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "d\ne\nf\ng", tail.String())
	_, _ = tail.Write([]byte("h\n"))
	assert.Equal(t, "e\nf\ngh", tail.String())
}

func TestProcessWorkerReportsPIDAndTail(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "builder.out")
	var script strings.Builder
	script.WriteString("echo READY $$\n")
	for i := 1; i <= 60; i++ {
		script.WriteString("echo line" + strconv.Itoa(i) + "\n")
	}
	script.WriteString("echo boom >&2\nexit 3\n")

	p := &ProcessWorker{
		WorkerName: "builder",
		Args:       []string{"/bin/sh", "-c", script.String()},
		LogFile:    logFile,
		Logger:     logging.Discard(),
	}
	r := &recordingReporter{}

	err := p.Keep(context.Background(), r)
	var halt *HaltError
	require.True(t, errors.As(err, &halt), "got %v", err)
	assert.Contains(t, halt.Error(), "exit status 3")

	require.Len(t, r.pids, 1)
	assert.Positive(t, r.pids[0])

	// stdout and stderr are read concurrently, so only membership is stable
	lines := strings.Split(halt.Tail, "\n")
	assert.Len(t, lines, DefaultTailLines)
	assert.Contains(t, lines, "boom")
	assert.Contains(t, lines, "line60")
	assert.NotContains(t, halt.Tail, "line10\n")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "line1\n")
	assert.Contains(t, string(data), "boom\n")
}

func TestProcessWorkerStopsOnCancel(t *testing.T) {
	p := &ProcessWorker{
		WorkerName:  "monitor",
		Args:        []string{"/bin/sh", "-c", "echo READY $$; sleep 30"},
		StopTimeout: time.Second,
		Logger:      logging.Discard(),
	}
	r := &recordingReporter{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Keep(ctx, r) }()

	waitFor(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.pids) == 1
	})
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker process was not stopped")
	}
}

func TestProcessWorkerMissingBinary(t *testing.T) {
	p := &ProcessWorker{WorkerName: "x", Args: []string{filepath.Join(t.TempDir(), "missing")}}
	err := p.Keep(context.Background(), &recordingReporter{})
	assert.ErrorContains(t, err, "failed to start worker x")
}

func TestReady(t *testing.T) {
	var b strings.Builder
	require.NoError(t, Ready(&b))
	assert.Equal(t, ReadyPrefix+strconv.Itoa(os.Getpid())+"\n", b.String())
}
