package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// StdioTransport frames JSON messages over a child process's stdin
// and stdout as one message per newline-terminated line, surfaces
// stderr as diagnostic logs, and ensures the child is reaped.
type StdioTransport struct {
	command string
	args    []string
	env     []string
	logger  Logger

	mu        sync.Mutex
	connected bool

	cmd   *exec.Cmd
	stdin io.WriteCloser

	lines      chan string
	readErr    chan error
	stopStderr chan struct{}
	stderrDone chan struct{}

	ids idCounter
}

// StdioTransportConfig configures a StdioTransport.
type StdioTransportConfig struct {
	Command string
	Args    []string
	// Env is an overlay applied on top of the host environment.
	Env    []string
	Logger Logger
}

// NewStdioTransport creates a stdio transport for the given command.
func NewStdioTransport(cfg StdioTransportConfig) *StdioTransport {
	return &StdioTransport{
		command: cfg.Command,
		args:    cfg.Args,
		env:     cfg.Env,
		logger:  logOrDiscard(cfg.Logger),
	}
}

// Start launches the child process and begins reading its stdout and
// stderr in the background.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return NewTransportError(KindConnect, "already connected", nil)
	}

	cmd := exec.Command(t.command, t.args...)
	cmd.Env = append(os.Environ(), t.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return NewTransportError(KindConnect, "create stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return NewTransportError(KindConnect, "create stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return NewTransportError(KindConnect, "create stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return NewTransportError(KindConnect, "start command", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.lines = make(chan string, 16)
	t.readErr = make(chan error, 1)
	t.stopStderr = make(chan struct{})
	t.stderrDone = make(chan struct{})

	go t.readStdout(stdout)
	go t.readStderr(stderr)

	t.connected = true
	return nil
}

func (t *StdioTransport) readStdout(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		t.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		t.readErr <- err
	} else {
		t.readErr <- io.EOF
	}
	close(t.lines)
}

func (t *StdioTransport) readStderr(stderr io.Reader) {
	defer close(t.stderrDone)
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		select {
		case <-t.stopStderr:
			return
		default:
		}
		t.logger.Printf("mcp stderr: %s", scanner.Text())
	}
}

// Send writes msg and, for requests, waits for the correlated
// response within the stdio deadline budget: 10s overall, with each
// individual read attempt bounded to 2s before retrying.
func (t *StdioTransport) Send(ctx context.Context, msg *Message) (*Message, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, NewTransportError(KindConnect, "not connected", nil)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.mu.Unlock()
		return nil, NewTransportError(KindFraming, "marshal message", err)
	}
	data = append(data, '\n')
	_, writeErr := t.stdin.Write(data)
	t.mu.Unlock()
	if writeErr != nil {
		return nil, NewTransportError(KindConnect, "write message", writeErr)
	}

	if msg.ID == nil {
		return nil, nil
	}

	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()

	for {
		perRead := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			perRead.Stop()
			return nil, ctx.Err()
		case <-deadline.C:
			perRead.Stop()
			return nil, NewTimeoutError("stdio send")
		case err := <-t.readErr:
			perRead.Stop()
			if err == io.EOF {
				return nil, NewTransportError(KindConnect, "stdout closed", io.EOF)
			}
			return nil, NewTransportError(KindFraming, "read stdout", err)
		case line, ok := <-t.lines:
			perRead.Stop()
			if !ok {
				return nil, NewTransportError(KindConnect, "stdout closed", io.EOF)
			}
			var resp Message
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				t.logger.Printf("mcp: skipping non-JSON stdout line: %v", err)
				continue
			}
			if resp.IsNotification() {
				continue
			}
			if !idsEqual(resp.ID, msg.ID) {
				t.logger.Printf("mcp: skipping response for unmatched id %v", resp.ID)
				continue
			}
			return &resp, nil
		case <-perRead.C:
			continue
		}
	}
}

// Stop signals the stderr reader to exit, closes stdin, and escalates
// through EOF-wait, SIGTERM, and SIGKILL until the child is reaped.
func (t *StdioTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	cmd := t.cmd
	stdin := t.stdin
	t.connected = false
	t.mu.Unlock()

	close(t.stopStderr)
	select {
	case <-t.stderrDone:
	case <-time.After(time.Second):
	}

	if stdin != nil {
		_ = safeClose(stdin)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-waitDone:
		return nil
	case <-time.After(3 * time.Second):
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(terminateSignal())
	}
	select {
	case <-waitDone:
		return nil
	case <-time.After(2 * time.Second):
	}

	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-waitDone
	return nil
}

// Connected reports whether the transport is currently started.
func (t *StdioTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// safeClose closes c, swallowing the platform-specific connection-
// reset conditions a half-dead pipe can raise on close.
func safeClose(c io.Closer) error {
	err := c.Close()
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, sub := range []string{"connection reset", "broken pipe", "file already closed"} {
		if strings.Contains(msg, sub) {
			return nil
		}
	}
	return err
}

func idsEqual(a, b interface{}) bool {
	return fmt.Sprint(normalizeID(a)) == fmt.Sprint(normalizeID(b))
}

// normalizeID collapses numeric id representations (int, float64 from
// JSON decoding) to a common form before comparison.
func normalizeID(v interface{}) interface{} {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	default:
		return v
	}
}
