package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vidstream/client/internal/models"
)

// State describes the push-channel connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event names exchanged with the push channel.
const (
	EventJoin          = "join"
	EventProcessVideo  = "processVideo"
	EventVideoProgress = "videoProgress"
	EventVideoError    = "videoError"
)

var (
	// ErrEngineClosed indicates the engine was explicitly torn down.
	ErrEngineClosed = errors.New("realtime engine closed")
	// ErrChannelUnavailable indicates the push channel is not connected.
	// The pull path stays fully functional when this is returned.
	ErrChannelUnavailable = errors.New("live update channel unavailable")
)

// Conn is a single live connection to the push channel.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer establishes push-channel connections. A fake implementation can
// script event sequences for tests without a real transport.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// Sink receives decoded pipeline events. The video entity store satisfies it.
type Sink interface {
	ApplyProgressEvent(event models.ProgressEvent)
	RecordFailure(videoID, message string)
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type videoError struct {
	VideoID string `json:"videoId"`
	Message string `json:"message"`
}

// Handler consumes the raw payload of one inbound event.
type Handler func(data json.RawMessage)

// Options controls reconnection behaviour.
type Options struct {
	// RetryLimit is the number of consecutive failed dial attempts tolerated
	// before the engine declares live updates unavailable.
	RetryLimit int
	// RetryDelay is the fixed backoff between attempts.
	RetryDelay time.Duration
}

// Engine owns the single process-wide push connection: it dials, announces
// the session identity, decodes inbound events into the sink, and reconnects
// within a bounded retry budget. Its own failures never escape as errors into
// consumers; they read the availability flag instead.
type Engine struct {
	dialer     Dialer
	url        string
	sink       Sink
	logger     *slog.Logger
	retryLimit int
	limiter    *rate.Limiter

	mu        sync.Mutex
	state     State
	conn      Conn
	userID    string
	available bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	listeners map[string]map[int]Handler
	nextID    int
}

// NewEngine constructs an engine targeting url, delivering pipeline events to
// sink.
func NewEngine(dialer Dialer, url string, sink Sink, opts Options, logger *slog.Logger) *Engine {
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		dialer:     dialer,
		url:        url,
		sink:       sink,
		logger:     logger,
		retryLimit: opts.RetryLimit,
		limiter:    rate.NewLimiter(rate.Every(opts.RetryDelay), 1),
		listeners:  make(map[string]map[int]Handler),
	}
}

// Connect starts the connection loop for the given identity. It is a no-op
// when already connected or connecting, and fails once the engine is closed.
func (e *Engine) Connect(userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateClosed:
		return ErrEngineClosed
	case StateConnecting, StateConnected:
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.userID = userID
	e.state = StateConnecting

	e.wg.Add(1)
	go e.run(ctx)
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	failures := 0
	for {
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}

		conn, err := e.dialer.DialContext(ctx, e.url)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			e.logger.Warn("push channel dial failed", "attempt", failures, "limit", e.retryLimit, "error", err)
			if failures >= e.retryLimit {
				e.giveUp()
				return
			}
			continue
		}
		failures = 0

		if !e.attach(conn) {
			_ = conn.Close()
			return
		}

		if err := e.Emit(EventJoin, e.currentUserID()); err != nil {
			e.logger.Warn("join announcement failed", "error", err)
		}

		e.readLoop(conn)

		e.mu.Lock()
		if e.state == StateClosed {
			e.mu.Unlock()
			return
		}
		e.conn = nil
		e.state = StateConnecting
		e.mu.Unlock()

		e.logger.Info("push channel disconnected, reconnecting")
	}
}

// attach installs the connection, reporting false when the engine was closed
// mid-dial.
func (e *Engine) attach(conn Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return false
	}
	e.conn = conn
	e.state = StateConnected
	e.available = true
	e.logger.Info("push channel connected")
	return true
}

func (e *Engine) giveUp() {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.state = StateDisconnected
	e.available = false
	e.conn = nil
	e.mu.Unlock()
	e.logger.Error("push channel retries exhausted, live updates unavailable")
}

func (e *Engine) currentUserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

func (e *Engine) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		e.dispatch(data)
	}
}

// dispatch decodes one inbound frame and applies it. Each event runs to
// completion before the next is read, so store updates are atomic per event.
func (e *Engine) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		e.logger.Warn("undecodable push frame dropped", "error", err)
		return
	}

	switch env.Event {
	case EventVideoProgress:
		var ev models.ProgressEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			e.logger.Warn("malformed progress event dropped", "error", err)
			return
		}
		if e.sink != nil {
			e.sink.ApplyProgressEvent(ev)
		}
	case EventVideoError:
		var ev videoError
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			e.logger.Warn("malformed error event dropped", "error", err)
			return
		}
		e.logger.Error("pipeline reported failure", "videoId", ev.VideoID, "message", ev.Message)
		if e.sink != nil {
			e.sink.RecordFailure(ev.VideoID, ev.Message)
		}
	}

	e.fanOut(env.Event, env.Data)
}

func (e *Engine) fanOut(event string, data json.RawMessage) {
	e.mu.Lock()
	registered := e.listeners[event]
	handlers := make([]Handler, 0, len(registered))
	for _, h := range registered {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
}

// On registers a handler for an event kind. Multiple independent consumers
// may register the same kind; the returned deregistration function removes
// only this registration and is safe to call more than once.
func (e *Engine) On(event string, handler Handler) func() {
	e.mu.Lock()
	if e.listeners[event] == nil {
		e.listeners[event] = make(map[int]Handler)
	}
	id := e.nextID
	e.nextID++
	e.listeners[event][id] = handler
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners[event], id)
		e.mu.Unlock()
	}
}

// Emit sends a client-originated event over the channel. It fails with
// ErrChannelUnavailable while disconnected; callers treat that as a degraded
// mode, not a crash.
func (e *Engine) Emit(event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected || e.conn == nil {
		return ErrChannelUnavailable
	}
	return e.conn.WriteJSON(envelope{Event: event, Data: body})
}

// State returns the current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Available reports live-update health for any UI that wants to show it.
func (e *Engine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

// Close tears the engine down. It is idempotent and safe to call when never
// connected.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = StateClosed
	e.available = false
	if e.cancel != nil {
		e.cancel()
	}
	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}
