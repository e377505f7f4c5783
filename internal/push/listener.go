package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
	readTimeout           = 90 * time.Second
)

// Notification is an out-of-band record-change message from the counter
// store. The listener's only contractual response is to trigger a re-fetch
// for matching configurations, never incremental patching.
type Notification struct {
	ScopeID    string `json:"scope_id"`
	RecordType string `json:"record_type"`
}

// Refresher receives record-change notifications. Implemented by the
// snapshot coordinator.
type Refresher interface {
	NotifyRecordChange(scopeID, recordType string)
}

// Listener subscribes to the counter store's websocket notification channel.
// It is an optional collaborator: a nil *Listener or an empty URL degrades to
// pure polling without error.
type Listener struct {
	url       string
	refresher Refresher
	dialer    *websocket.Dialer

	// reconnect backoff bounds, overridable in tests
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewListener creates a listener. url may be empty to disable the channel.
func NewListener(url string, refresher Refresher) *Listener {
	return &Listener{
		url:       url,
		refresher: refresher,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		initialDelay: initialReconnectDelay,
		maxDelay:     maxReconnectDelay,
	}
}

// Run connects and consumes notifications until ctx is cancelled,
// reconnecting with capped backoff after any failure. Connection errors are
// logged, not returned: the periodic refresh keeps data flowing regardless.
func (l *Listener) Run(ctx context.Context) {
	if l == nil || l.url == "" {
		return
	}

	delay := l.initialDelay
	for {
		started := time.Now()
		err := l.consume(ctx)
		if time.Since(started) > l.maxDelay {
			delay = l.initialDelay
		}
		if err != nil {
			slog.Warn("[Push] Notification channel disconnected, falling back to polling until reconnect",
				"url", l.url,
				"error", err,
				"retry_in", delay,
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > l.maxDelay {
			delay = l.maxDelay
		}
	}
}

// consume holds one connection open and dispatches its messages. Returns on
// read error or context cancellation; a successful read resets the caller's
// backoff via the error being nil only on ctx.Done.
func (l *Listener) consume(ctx context.Context) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	slog.Info("[Push] Connected to notification channel", "url", l.url)

	// Unblock the read loop on cancellation. The watcher is scoped to this
	// connection so it does not outlive it across reconnects.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var note Notification
		if err := json.Unmarshal(payload, &note); err != nil {
			slog.Warn("[Push] Dropping malformed notification", "error", err)
			continue
		}

		slog.Info("[Push] Record change notification",
			"scope_id", note.ScopeID,
			"record_type", note.RecordType,
		)
		l.refresher.NotifyRecordChange(note.ScopeID, note.RecordType)
	}
}
