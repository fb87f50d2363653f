package waiter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vton/internal/apperrors"
	"vton/internal/endpoint"
	"vton/internal/invoker"
	"vton/internal/store"
)

// Push channel message types. The channel is shared: a worker multiplexes
// announcements for every session's jobs, so everything not addressed to
// this job's correlation id is ignored.
const (
	msgExecuted       = "executed"
	msgExecutionError = "execution_error"
)

// pushMessage is the wire shape of a push channel announcement.
type pushMessage struct {
	Type string `json:"type"`
	Data struct {
		PromptID string `json:"prompt_id"`
		Output   struct {
			Images []struct {
				Filename string `json:"filename"`
			} `json:"images"`
		} `json:"output"`
		Error string `json:"error,omitempty"`
	} `json:"data"`
}

// PushWaiter is Strategy B: submit for a correlation id, then listen on a
// session-scoped socket until the announcement with a matching id arrives.
//
// Lifecycle per job: Connecting -> Listening -> Matched | IdleTimeout |
// ConnectionError. Terminal outcomes never transition.
type PushWaiter struct {
	invoker     *invoker.Invoker
	dialer      *websocket.Dialer
	idleTimeout time.Duration
	logger      *slog.Logger
}

// NewPush creates a push-subscribe waiter. idleTimeout bounds each receive:
// if the socket stays silent that long the job is declared timed out, even
// though the worker may still be running.
func NewPush(inv *invoker.Invoker, idleTimeout time.Duration) *PushWaiter {
	if idleTimeout <= 0 {
		idleTimeout = 2 * time.Minute
	}
	return &PushWaiter{
		invoker:     inv,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		idleTimeout: idleTimeout,
		logger:      slog.With("component", "push-waiter"),
	}
}

// Await submits the job, then consumes the push channel until a matching
// completion message, the idle timeout, or the context deadline.
func (w *PushWaiter) Await(ctx context.Context, ep *endpoint.Endpoint, jobID string, p *invoker.Payload) (*CompletionEvent, error) {
	handle, err := w.invoker.Submit(ctx, ep, p)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	conn, err := w.connect(ctx, ep, sessionID)
	if err != nil {
		return nil, apperrors.Unreachable(ep.ID, err)
	}
	defer conn.Close()

	// Unblock the read loop when the job deadline fires.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	logger := w.logger.With("jobId", jobID, "promptId", handle.PromptID, "endpoint", ep.ID)

	for {
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < w.idleTimeout {
			conn.SetReadDeadline(deadline)
		} else {
			conn.SetReadDeadline(time.Now().Add(w.idleTimeout))
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isTimeout(err) {
				logger.Warn("Push channel went silent before completion")
				return nil, apperrors.Timeout("waiter.push")
			}
			return nil, apperrors.Unreachable(ep.ID, err)
		}

		var msg pushMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Shared channel; undecodable frames belong to someone else.
			logger.Debug("Ignoring undecodable push message", "error", err)
			continue
		}
		if msg.Data.PromptID != handle.PromptID {
			continue
		}

		switch msg.Type {
		case msgExecuted:
			if len(msg.Data.Output.Images) == 0 || msg.Data.Output.Images[0].Filename == "" {
				return nil, apperrors.Malformed(ep.ID, "completion message missing output images")
			}
			return &CompletionEvent{
				JobID:     jobID,
				Status:    StatusSucceeded,
				OutputKey: store.NormalizeResultKey(msg.Data.Output.Images[0].Filename),
			}, nil
		case msgExecutionError:
			return nil, apperrors.RemoteRejected(ep.ID, 0, msg.Data.Error)
		default:
			// Progress updates for this job; keep listening.
		}
	}
}

// connect dials the endpoint's push channel scoped to a fresh session id.
func (w *PushWaiter) connect(ctx context.Context, ep *endpoint.Endpoint, sessionID string) (*websocket.Conn, error) {
	wsURL, err := pushURL(ep.BaseURL, sessionID)
	if err != nil {
		return nil, err
	}

	var header map[string][]string
	if ep.Token != "" {
		header = map[string][]string{"Authorization": {"Bearer " + ep.Token}}
	}

	conn, _, err := w.dialer.DialContext(ctx, wsURL, header)
	return conn, err
}

// pushURL converts an endpoint base URL into its socket address.
func pushURL(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = "clientId=" + url.QueryEscape(sessionID)
	return u.String(), nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
