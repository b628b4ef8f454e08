package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"postgrator/internal/model"
	"postgrator/internal/util"
)

const (
	writeWait      = 10 * time.Second
	defaultPong    = 60 * time.Second
	maxMessageSize = 512 * 1024 // 512KB
)

// Dialer opens push channels against one server.
type Dialer struct {
	server   string
	ws       *websocket.Dialer
	header   http.Header
	policy   model.ReconnectOptions
	pongWait time.Duration
	log      logrus.FieldLogger
}

// DialerOption configures a Dialer.
type DialerOption func(*Dialer)

// WithReconnect sets the policy applied after an abnormal close.
func WithReconnect(p model.ReconnectOptions) DialerOption {
	return func(d *Dialer) {
		d.policy = p
	}
}

// WithKeepalive sets how long a connection may stay silent before it is
// considered dead; pings are sent at 90% of it. Zero disables keepalive.
func WithKeepalive(pongWait time.Duration) DialerOption {
	return func(d *Dialer) {
		d.pongWait = pongWait
	}
}

// WithDialerLogger attaches a logger.
func WithDialerLogger(l logrus.FieldLogger) DialerOption {
	return func(d *Dialer) {
		d.log = l
	}
}

// WithHandshakeTimeout bounds the websocket handshake.
func WithHandshakeTimeout(t time.Duration) DialerOption {
	return func(d *Dialer) {
		d.ws.HandshakeTimeout = t
	}
}

// NewDialer creates a Dialer for a normalized server URL.
func NewDialer(server string, opts ...DialerOption) *Dialer {
	d := &Dialer{
		server: server,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		header:   http.Header{"User-Agent": []string{"postgrator-cli"}},
		policy:   model.ReconnectOptions{Mode: model.ReconnectNone},
		pongWait: defaultPong,
	}
	for _, o := range opts {
		o(d)
	}
	if d.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.log = l
	}
	return d
}

// Handle is one open push channel. Events arrive in transport order on
// Events(); the channel is closed when the stream ends for good.
type Handle struct {
	jobID string
	d     *Dialer
	log   logrus.FieldLogger

	events chan Event
	errs   chan error
	done   chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup

	mu   sync.Mutex
	conn *websocket.Conn
}

// Open dials the job's stream endpoint. A failed first dial is returned as
// a *StreamError; later failures are only reported on Errors().
func (d *Dialer) Open(ctx context.Context, jobID string) (*Handle, error) {
	url, err := util.StreamURL(d.server, jobID)
	if err != nil {
		return nil, &StreamError{JobID: jobID, Op: "dial", Err: err}
	}
	conn, _, err := d.ws.DialContext(ctx, url, d.header)
	if err != nil {
		return nil, &StreamError{JobID: jobID, Op: "dial", Err: err}
	}

	h := &Handle{
		jobID:  jobID,
		d:      d,
		log:    d.log.WithFields(logrus.Fields{"job_id": jobID, "url": url}),
		events: make(chan Event),
		errs:   make(chan error, 16),
		done:   make(chan struct{}),
		conn:   conn,
	}
	h.log.Debug("stream connected")

	h.wg.Add(1)
	go h.run(url, conn)
	return h, nil
}

// Events returns the ordered event sequence.
func (h *Handle) Events() <-chan Event { return h.events }

// Errors returns best-effort diagnostics. Sends never block; when the
// buffer is full, diagnostics are dropped.
func (h *Handle) Errors() <-chan error { return h.errs }

// Close releases the channel. It is safe to call more than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		if h.conn != nil {
			_ = h.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = h.conn.Close()
		}
		h.mu.Unlock()
		h.wg.Wait()
		h.log.Debug("stream closed")
	})
	return nil
}

func (h *Handle) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) report(err error) {
	h.log.WithError(err).Warn("stream diagnostic")
	select {
	case h.errs <- err:
	default:
	}
}

func (h *Handle) run(url string, conn *websocket.Conn) {
	defer h.wg.Done()
	defer close(h.events)

	attempt := 0
	for {
		err := h.readLoop(conn)
		if h.closed() {
			return
		}
		if err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			h.log.Info("stream closed by server")
			return
		}
		h.report(&StreamError{JobID: h.jobID, Op: "read", Attempt: attempt, Err: err})

		// Reconnect until a dial succeeds or the policy gives up.
		conn = nil
		for conn == nil {
			attempt++
			delay, ok := nextDelay(h.d.policy, attempt)
			if !ok {
				h.log.WithField("attempts", attempt-1).Info("stream not reopened")
				return
			}
			t := time.NewTimer(delay)
			select {
			case <-h.done:
				t.Stop()
				return
			case <-t.C:
			}

			ctx, cancel := context.WithTimeout(context.Background(), h.d.ws.HandshakeTimeout+writeWait)
			c, _, derr := h.d.ws.DialContext(ctx, url, h.d.header)
			cancel()
			if derr != nil {
				h.report(&StreamError{JobID: h.jobID, Op: "dial", Attempt: attempt, Err: derr})
				continue
			}
			h.mu.Lock()
			if h.closed() {
				h.mu.Unlock()
				_ = c.Close()
				return
			}
			h.conn = c
			h.mu.Unlock()
			conn = c
			h.log.WithField("attempt", attempt).Info("stream reconnected")
		}
		attempt = 0
	}
}

func (h *Handle) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)

	stopPing := make(chan struct{})
	defer close(stopPing)
	if pw := h.d.pongWait; pw > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(pw))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pw))
		})
		go h.pingLoop(conn, pw*9/10, stopPing)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if pw := h.d.pongWait; pw > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(pw))
		}

		ev, derr := Decode(data)
		if derr != nil {
			h.report(&StreamError{JobID: h.jobID, Op: "decode", Err: derr})
			continue
		}
		select {
		case h.events <- ev:
		case <-h.done:
			return errors.New("stream closed")
		}
	}
}

func (h *Handle) pingLoop(conn *websocket.Conn, period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
