package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SSETransport maintains an SSE GET stream, receives a single
// `endpoint` event announcing a POST URL, forwards subsequent
// `message` events (parsed as JSON) into an internal queue, and
// issues JSON-RPC requests by POST to that URL, correlating responses
// read back from the SSE queue by request id.
type SSETransport struct {
	sseURL  string
	headers map[string]string
	logger  Logger
	client  *http.Client

	sessionID string
	baseURL   string

	mu          sync.Mutex
	connected   bool
	endpointURL string

	resp       *http.Response
	parserDone chan struct{}
	cancelRead context.CancelFunc

	ready   chan struct{}
	readyMu sync.Once

	events chan sseEvent
}

type sseEvent struct {
	event string
	data  string
}

// SSETransportConfig configures an SSETransport.
type SSETransportConfig struct {
	// URL is the SSE endpoint, e.g. "http://host:port/sse".
	URL     string
	Headers map[string]string
	Logger  Logger
}

var sessionIDPattern = regexp.MustCompile(`session_id=([^&\s]+)`)

// NewSSETransport creates an SSE transport for the given server URL.
func NewSSETransport(cfg SSETransportConfig) *SSETransport {
	return &SSETransport{
		sseURL:    cfg.URL,
		headers:   cfg.Headers,
		logger:    logOrDiscard(cfg.Logger),
		client:    &http.Client{},
		sessionID: "mcp-host-" + uuid.NewString(),
		baseURL:   deriveBaseURL(cfg.URL),
	}
}

// deriveBaseURL strips a trailing "/sse" segment from the SSE URL so
// relative endpoint URLs can be resolved against it.
func deriveBaseURL(sseURL string) string {
	trimmed := strings.TrimRight(sseURL, "/")
	if idx := strings.LastIndex(trimmed, "/sse"); idx >= 0 && idx == len(trimmed)-len("/sse") {
		return trimmed[:idx]
	}
	return trimmed
}

// Start opens the SSE GET stream and waits up to 10s for the first
// `endpoint` event.
func (t *SSETransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return NewTransportError(KindConnect, "already connected", nil)
	}
	t.mu.Unlock()

	reqURL := t.sseURL
	if strings.Contains(reqURL, "?") {
		reqURL += "&session_id=" + t.sessionID
	} else {
		reqURL += "?session_id=" + t.sessionID
	}

	readCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(readCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		cancel()
		return NewTransportError(KindConnect, "build SSE request", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return NewTransportError(KindConnect, "open SSE stream", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return NewTransportError(KindConnect, fmt.Sprintf("SSE GET returned %d", resp.StatusCode), nil)
	}

	t.mu.Lock()
	t.resp = resp
	t.cancelRead = cancel
	t.events = make(chan sseEvent, 32)
	t.parserDone = make(chan struct{})
	t.ready = make(chan struct{})
	t.connected = true
	t.mu.Unlock()

	go t.parseEvents(resp.Body)

	select {
	case <-t.ready:
		return nil
	case <-time.After(10 * time.Second):
		return NewTimeoutError("SSE endpoint wait")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseEvents reads the SSE body line by line, assembling events by
// the standard rule: `event:`/`data:` lines, blank line terminates an
// event, `:`-prefixed lines are keep-alive comments.
func (t *SSETransport) parseEvents(body io.ReadCloser) {
	defer close(t.parserDone)
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var curEvent, curData strings.Builder
	flush := func() {
		if curEvent.Len() == 0 && curData.Len() == 0 {
			return
		}
		t.handleEvent(sseEvent{event: curEvent.String(), data: curData.String()})
		curEvent.Reset()
		curData.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// keep-alive comment, ignored
		case strings.HasPrefix(line, "event:"):
			curEvent.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		case strings.HasPrefix(line, "data:"):
			if curData.Len() > 0 {
				curData.WriteByte('\n')
			}
			curData.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	flush()
}

func (t *SSETransport) handleEvent(ev sseEvent) {
	switch ev.event {
	case "endpoint":
		t.handleEndpoint(ev.data)
	case "message":
		select {
		case t.events <- ev:
		default:
			t.logger.Printf("mcp sse: event queue full, dropping message")
		}
	default:
		t.logger.Printf("mcp sse: ignoring unrecognized event %q", ev.event)
	}
}

func (t *SSETransport) handleEndpoint(payload string) {
	t.mu.Lock()
	endpoint := payload
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = t.baseURL + endpoint
	}
	if m := sessionIDPattern.FindStringSubmatch(payload); len(m) == 2 {
		t.sessionID = m[1]
	}
	t.endpointURL = endpoint
	t.mu.Unlock()

	t.readyMu.Do(func() { close(t.ready) })
}

// Send POSTs msg to the resolved endpoint URL and, for requests,
// waits up to 30s for the correlated event to arrive on the queue.
func (t *SSETransport) Send(ctx context.Context, msg *Message) (*Message, error) {
	t.mu.Lock()
	endpoint := t.endpointURL
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return nil, NewTransportError(KindConnect, "not connected", nil)
	}
	if endpoint == "" {
		return nil, NewTransportError(KindConnect, "no endpoint URL received", nil)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, NewTransportError(KindFraming, "marshal message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, NewTransportError(KindConnect, "build POST request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, NewTransportError(KindConnect, "POST message", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, NewTransportError(KindConnect, fmt.Sprintf("POST returned %d", resp.StatusCode), nil)
	}

	if msg.ID == nil {
		return nil, nil
	}

	deadline := time.NewTimer(30 * time.Second)
	defer deadline.Stop()

	var requeue []sseEvent
	defer func() {
		for _, ev := range requeue {
			select {
			case t.events <- ev:
			default:
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, NewTimeoutError("SSE response wait")
		case ev := <-t.events:
			var parsed Message
			if err := json.Unmarshal([]byte(ev.data), &parsed); err != nil {
				t.logger.Printf("mcp sse: skipping non-JSON message event: %v", err)
				continue
			}
			if parsed.IsNotification() {
				continue
			}
			if !idsEqual(parsed.ID, msg.ID) {
				requeue = append(requeue, ev)
				continue
			}
			return &parsed, nil
		case <-time.After(500 * time.Millisecond):
			continue
		}
	}
}

// Stop cancels the event parser, closes the streaming response, and
// closes the underlying client transport. All close errors are
// non-fatal.
func (t *SSETransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	cancel := t.cancelRead
	resp := t.resp
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	select {
	case <-t.parserDone:
	case <-time.After(2 * time.Second):
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.client.CloseIdleConnections()
	return nil
}

// Connected reports whether the SSE stream is open.
func (t *SSETransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}
