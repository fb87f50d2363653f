package waiter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vton/internal/apperrors"
	"vton/internal/endpoint"
	"vton/internal/invoker"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stubWorker serves the submit route and a push channel that replays the
// given frames after the client subscribes.
func stubWorker(t *testing.T, promptID string, frames []string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tryon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"prompt_id": promptID})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("clientId") == "" {
			t.Error("push channel subscription missing clientId")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Keep the channel open; the waiter decides when to stop.
		time.Sleep(5 * time.Second)
	})

	return httptest.NewServer(mux)
}

func executedFrame(promptID, filename string) string {
	return `{"type":"executed","data":{"prompt_id":"` + promptID + `","output":{"images":[{"filename":"` + filename + `"}]}}}`
}

func TestPushAwaitMatched(t *testing.T) {
	t.Parallel()

	srv := stubWorker(t, "p-1", []string{
		`{"type":"status","data":{"prompt_id":"p-1"}}`,
		executedFrame("p-1", "result_xyz.png"),
	})
	defer srv.Close()

	w := NewPush(invoker.New(5*time.Second), 2*time.Second)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	ev, err := w.Await(context.Background(), ep, "job-1", &invoker.Payload{ClothType: "upper", Seed: -1})
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if ev.Status != StatusSucceeded {
		t.Errorf("Status = %q, want succeeded", ev.Status)
	}
	if ev.OutputKey != "results/result_xyz.png" {
		t.Errorf("OutputKey = %q, want results/result_xyz.png", ev.OutputKey)
	}
	if ev.JobID != "job-1" {
		t.Errorf("JobID = %q, want job-1", ev.JobID)
	}
}

func TestPushAwaitIgnoresForeignJobs(t *testing.T) {
	t.Parallel()

	// Completion messages for other jobs arrive first, including one that
	// looks exactly like success. The waiter must not complete early.
	srv := stubWorker(t, "p-mine", []string{
		executedFrame("p-other-1", "result_wrong1.png"),
		`{"type":"execution_error","data":{"prompt_id":"p-other-2","error":"oom"}}`,
		executedFrame("p-other-3", "result_wrong2.png"),
		executedFrame("p-mine", "result_right.png"),
	})
	defer srv.Close()

	w := NewPush(invoker.New(5*time.Second), 2*time.Second)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	ev, err := w.Await(context.Background(), ep, "job-2", &invoker.Payload{ClothType: "upper", Seed: -1})
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if ev.OutputKey != "results/result_right.png" {
		t.Errorf("OutputKey = %q, completed on a foreign job's message", ev.OutputKey)
	}
}

func TestPushAwaitIdleTimeout(t *testing.T) {
	t.Parallel()

	// Channel never emits a matching message.
	srv := stubWorker(t, "p-1", []string{
		executedFrame("p-unrelated", "result_unrelated.png"),
	})
	defer srv.Close()

	w := NewPush(invoker.New(5*time.Second), 200*time.Millisecond)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	done := make(chan error, 1)
	go func() {
		_, err := w.Await(context.Background(), ep, "job-3", &invoker.Payload{ClothType: "upper", Seed: -1})
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, apperrors.ErrTimeout) {
			t.Fatalf("error = %v, want ErrTimeout", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Await() hung instead of timing out")
	}
}

func TestPushAwaitDeadline(t *testing.T) {
	t.Parallel()

	srv := stubWorker(t, "p-1", nil)
	defer srv.Close()

	w := NewPush(invoker.New(5*time.Second), time.Minute)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := w.Await(ctx, ep, "job-4", &invoker.Payload{ClothType: "upper", Seed: -1})
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("deadline did not unblock the receive promptly (%v)", time.Since(start))
	}
}

func TestPushAwaitExecutionError(t *testing.T) {
	t.Parallel()

	srv := stubWorker(t, "p-1", []string{
		`{"type":"execution_error","data":{"prompt_id":"p-1","error":"CUDA out of memory"}}`,
	})
	defer srv.Close()

	w := NewPush(invoker.New(5*time.Second), 2*time.Second)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	_, err := w.Await(context.Background(), ep, "job-5", &invoker.Payload{ClothType: "upper", Seed: -1})
	if !errors.Is(err, apperrors.ErrRemoteRejected) {
		t.Fatalf("error = %v, want ErrRemoteRejected", err)
	}
}

func TestPushAwaitMalformedCompletion(t *testing.T) {
	t.Parallel()

	srv := stubWorker(t, "p-1", []string{
		`{"type":"executed","data":{"prompt_id":"p-1","output":{"images":[]}}}`,
	})
	defer srv.Close()

	w := NewPush(invoker.New(5*time.Second), 2*time.Second)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	_, err := w.Await(context.Background(), ep, "job-6", &invoker.Payload{ClothType: "upper", Seed: -1})
	if !errors.Is(err, apperrors.ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestPushURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base string
		want string
	}{
		{"https://abc.api.runpod.ai", "wss://abc.api.runpod.ai/ws?clientId=s1"},
		{"http://127.0.0.1:8188", "ws://127.0.0.1:8188/ws?clientId=s1"},
		{"http://host:8000/base/", "ws://host:8000/base/ws?clientId=s1"},
	}

	for _, tt := range tests {
		got, err := pushURL(tt.base, "s1")
		if err != nil {
			t.Fatalf("pushURL(%q) error: %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("pushURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestSyncAwait(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"result_image_key": "results/result_sync.png"})
	}))
	defer srv.Close()

	w := NewSync(invoker.New(5 * time.Second))
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	ev, err := w.Await(context.Background(), ep, "job-7", &invoker.Payload{ClothType: "upper", Seed: 42})
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	if ev.Status != StatusSucceeded || ev.OutputKey != "results/result_sync.png" {
		t.Errorf("event = %+v", ev)
	}
}
