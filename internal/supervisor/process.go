package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/hepwiki/wikibot/internal/logging"
)

// ReadyPrefix starts the handshake line a worker process prints once it
// is executing, followed by its pid.
const ReadyPrefix = "READY "

// DefaultTailLines is how much output a halt notification carries.
const DefaultTailLines = 50

// Ready prints the handshake line for the current process.
func Ready(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s%d\n", ReadyPrefix, os.Getpid())
	return err
}

// ProcessWorker runs a worker in a separate OS process, so a crash or a
// hung browser or server does not share memory with the supervisor.
type ProcessWorker struct {
	WorkerName string

	// Args is the full command line. NewProcessWorker re-executes the
	// current binary as "worker <name>".
	Args []string

	// Env is appended to the inherited environment.
	Env []string

	// LogFile receives the complete output, rotated by lumberjack.
	LogFile string

	// TailLines of output are kept for the halt notification.
	TailLines int

	// StopTimeout is the grace period between SIGTERM and SIGKILL.
	StopTimeout time.Duration

	Logger *slog.Logger
}

// NewProcessWorker returns a worker that re-executes the running binary.
func NewProcessWorker(name, logDir string, logger *slog.Logger) (*ProcessWorker, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	p := &ProcessWorker{
		WorkerName:  name,
		Args:        []string{exe, "worker", name},
		TailLines:   DefaultTailLines,
		StopTimeout: 5 * time.Second,
		Logger:      logger,
	}
	if logDir != "" {
		p.LogFile = filepath.Join(logDir, name+".out")
	}
	return p, nil
}

// Name implements Worker.
func (p *ProcessWorker) Name() string {
	return p.WorkerName
}

func (p *ProcessWorker) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Keep starts the process and blocks until it exits. The returned
// *HaltError carries the last TailLines lines of output.
func (p *ProcessWorker) Keep(ctx context.Context, r Reporter) error {
	if len(p.Args) == 0 {
		return &HaltError{Err: fmt.Errorf("worker %s has no command", p.WorkerName)}
	}
	n := p.TailLines
	if n <= 0 {
		n = DefaultTailLines
	}
	tail := NewTail(n)

	cmd := exec.Command(p.Args[0], p.Args[1:]...)
	cmd.Env = append(os.Environ(), p.Env...)
	// own process group, so the worker's children are stopped with it
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &HaltError{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &HaltError{Err: err}
	}

	var sink io.Writer = io.Discard
	if p.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(p.LogFile), 0755); err != nil {
			return &HaltError{Err: fmt.Errorf("failed to create log directory: %w", err)}
		}
		file := logging.RotatingFile(p.LogFile, 0, 0, 0)
		defer file.Close()
		sink = file
	}
	out := &lockedWriter{w: sink}

	if err := cmd.Start(); err != nil {
		return &HaltError{Err: fmt.Errorf("failed to start worker %s: %w", p.WorkerName, err)}
	}
	log := p.logger().With("worker", p.WorkerName, "pid", cmd.Process.Pid)
	log.Debug("worker process started")

	stop := context.AfterFunc(ctx, func() { p.terminate(cmd.Process.Pid, log) })
	defer stop()

	var once sync.Once
	onReady := func(pid int) { once.Do(func() { r.Started(pid) }) }

	var g errgroup.Group
	g.Go(func() error { return pump(stdout, out, tail, onReady) })
	g.Go(func() error { return pump(stderr, out, tail, nil) })
	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	if pumpErr != nil {
		log.Warn("failed to read worker output", "error", pumpErr)
	}
	if ctx.Err() != nil {
		return &HaltError{Err: ctx.Err(), Tail: tail.String()}
	}
	if waitErr == nil {
		waitErr = fmt.Errorf("worker %s exited", p.WorkerName)
	} else {
		waitErr = fmt.Errorf("worker %s: %w", p.WorkerName, waitErr)
	}
	return &HaltError{Err: waitErr, Tail: tail.String()}
}

// terminate signals the process group, then kills it after StopTimeout.
func (p *ProcessWorker) terminate(pid int, log *slog.Logger) {
	log.Info("stopping worker process")
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		log.Debug("failed to signal worker", "error", err)
		return
	}
	timeout := p.StopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	time.AfterFunc(timeout, func() {
		if err := unix.Kill(-pid, unix.SIGKILL); err == nil {
			log.Warn("worker process killed")
		}
	})
}

func pump(r io.Reader, out io.Writer, tail *Tail, onReady func(int)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if onReady != nil && strings.HasPrefix(line, ReadyPrefix) {
			if pid, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, ReadyPrefix))); err == nil {
				onReady(pid)
			}
		}
		tail.Add(line)
		if _, err := io.WriteString(out, line+"\n"); err != nil {
			return err
		}
	}
	return scanner.Err()
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Tail keeps the last n lines written to it.
type Tail struct {
	mu      sync.Mutex
	lines   []string
	next    int
	full    bool
	partial []byte
}

// NewTail returns a ring of n lines.
func NewTail(n int) *Tail {
	if n <= 0 {
		n = 1
	}
	return &Tail{lines: make([]string, n)}
}

// Add appends one line, dropping the oldest when full.
func (t *Tail) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.add(line)
}

// Write implements io.Writer. An unterminated last line is held back
// until its newline arrives.
func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partial = append(t.partial, p...)
	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			break
		}
		t.add(string(t.partial[:i]))
		t.partial = t.partial[i+1:]
	}
	return len(p), nil
}

func (t *Tail) add(line string) {
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

// String returns the kept lines, oldest first.
func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var kept []string
	if t.full {
		kept = append(kept, t.lines[t.next:]...)
	}
	kept = append(kept, t.lines[:t.next]...)
	if len(t.partial) > 0 {
		kept = append(kept, string(t.partial))
	}
	return strings.Join(kept, "\n")
}
