package leap

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds how long a caller waits for a tagged
// response.
const DefaultRequestTimeout = 5 * time.Second

// Handler receives unsolicited messages routed by URL.
type Handler func(*Message)

type subscription struct {
	url     string
	prefix  bool
	handler Handler
}

// Requester multiplexes concurrent requests over one Connection. Every
// request carries a client-assigned tag which the bridge echoes back in
// Header.ClientTag; untagged messages are routed to URL subscribers.
type Requester struct {
	conn    *Connection
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	nextTag uint64
	pending map[string]chan *Message
	subs    []subscription
	closed  bool
}

// RequesterOption customizes a Requester.
type RequesterOption func(*Requester)

// WithRequestTimeout overrides the default per-request timeout.
func WithRequestTimeout(d time.Duration) RequesterOption {
	return func(r *Requester) {
		r.timeout = d
	}
}

// NewRequester wraps a connection. Run must be started for responses to be
// delivered.
func NewRequester(conn *Connection, logger *zap.Logger, opts ...RequesterOption) *Requester {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Requester{
		conn:    conn,
		logger:  logger,
		timeout: DefaultRequestTimeout,
		pending: make(map[string]chan *Message),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run owns the read loop: it decodes incoming messages and dispatches them
// until the stream ends. On return every pending request has been resolved
// with ErrConnectionClosed. The returned error is the transport error that
// ended the session, or nil after Close.
func (r *Requester) Run(ctx context.Context) error {
	defer r.shutdown()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, err := r.conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			wasClosed := r.closed
			r.mu.Unlock()
			if wasClosed {
				return nil
			}
			return err
		}
		r.dispatch(msg)
	}
}

func (r *Requester) dispatch(msg *Message) {
	if tag := msg.Header.ClientTag; tag != "" {
		r.mu.Lock()
		ch, ok := r.pending[tag]
		if ok {
			delete(r.pending, tag)
		}
		r.mu.Unlock()
		if ok {
			ch <- msg
			return
		}
		// A response whose awaiter is gone (cancelled or timed out).
		r.logger.Debug("dropping response for unknown tag",
			zap.String("tag", tag), zap.String("url", msg.Header.Url))
		return
	}

	handlers := r.handlersFor(msg.Header.Url)
	if len(handlers) == 0 {
		r.logger.Debug("dropping unsolicited message for unknown url",
			zap.String("url", msg.Header.Url),
			zap.String("communique_type", msg.CommuniqueType.String()))
		return
	}
	for _, h := range handlers {
		h(msg)
	}
}

func (r *Requester) handlersFor(url string) []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	var handlers []Handler
	for _, sub := range r.subs {
		if sub.url == url || (sub.prefix && strings.HasPrefix(url, sub.url)) {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers
}

// Request sends a tagged message and waits for the matching response.
// Transport failures, cancellation and timeouts surface as errors; a non-2xx
// bridge status does not — callers inspect it with Message.CheckStatus.
func (r *Requester) Request(ctx context.Context, ct CommuniqueType, url string, body any) (*Message, error) {
	var raw json.RawMessage
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		raw = data
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	r.nextTag++
	tag := strconv.FormatUint(r.nextTag, 10)
	ch := make(chan *Message, 1)
	r.pending[tag] = ch
	r.mu.Unlock()

	msg := &Message{
		CommuniqueType: ct,
		Header:         Header{ClientTag: tag, Url: url},
		Body:           raw,
	}
	if err := r.conn.WriteMessage(msg); err != nil {
		r.forget(tag)
		return nil, err
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case response, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return response, nil
	case <-timer.C:
		r.forget(tag)
		return nil, &TimeoutError{Url: url}
	case <-ctx.Done():
		r.forget(tag)
		return nil, ctx.Err()
	}
}

// forget removes a pending tag so a late response is dropped instead of
// delivered.
func (r *Requester) forget(tag string) {
	r.mu.Lock()
	delete(r.pending, tag)
	r.mu.Unlock()
}

// Subscribe issues a SubscribeRequest and, on a successful response,
// registers handler for subsequent unsolicited messages on url. When prefix
// is set the handler also matches any URL below it. The SubscribeResponse is
// returned so the caller can feed the initial state through the same
// handler.
func (r *Requester) Subscribe(ctx context.Context, url string, prefix bool, handler Handler) (*Message, error) {
	response, err := r.Request(ctx, SubscribeRequest, url, nil)
	if err != nil {
		return nil, err
	}
	if err := response.CheckStatus(); err != nil {
		return response, err
	}
	r.AddHandler(url, prefix, handler)
	return response, nil
}

// AddHandler registers an unsolicited-message handler without issuing a
// subscription request. Bridges push some topics spontaneously.
func (r *Requester) AddHandler(url string, prefix bool, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, subscription{url: url, prefix: prefix, handler: handler})
}

// Close tears down the connection. Pending requests resolve with
// ErrConnectionClosed.
func (r *Requester) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	_ = r.conn.Close()
}

func (r *Requester) shutdown() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]chan *Message)
	r.closed = true
	r.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	_ = r.conn.Close()
}
