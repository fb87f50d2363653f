package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vton/internal/apperrors"
	"vton/internal/endpoint"
)

func testPayload() *Payload {
	return &Payload{
		PersonImageKey:  "uploads/person_abc.jpg",
		GarmentImageKey: "uploads/garment_abc.jpg",
		ClothType:       "upper",
		Seed:            42,
	}
}

func TestInvokeSync(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tryon-s3" {
			t.Errorf("path = %q, want /api/v1/tryon-s3", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}

		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if p.ClothType != "upper" || p.Seed != 42 {
			t.Errorf("payload = %+v", p)
		}
		if p.PersonImageKey == "" || p.GarmentImageKey == "" {
			t.Error("payload must carry object keys, not bytes")
		}

		json.NewEncoder(w).Encode(map[string]string{"result_image_key": "results/result_abc.png"})
	}))
	defer srv.Close()

	inv := New(5 * time.Second)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL, Token: "tok"}

	key, err := inv.InvokeSync(context.Background(), ep, testPayload())
	if err != nil {
		t.Fatalf("InvokeSync() error: %v", err)
	}
	if key != "results/result_abc.png" {
		t.Errorf("InvokeSync() = %q", key)
	}
}

func TestInvokeSyncRemoteRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Worker is not ready."}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	inv := New(5 * time.Second)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	_, err := inv.InvokeSync(context.Background(), ep, testPayload())
	if !errors.Is(err, apperrors.ErrRemoteRejected) {
		t.Fatalf("error = %v, want ErrRemoteRejected", err)
	}
	if errors.Is(err, apperrors.ErrEndpointUnreachable) {
		t.Error("application-level rejection must not be classified as unreachable")
	}
}

func TestInvokeSyncUnreachable(t *testing.T) {
	t.Parallel()

	// Grab a port that nothing is listening on.
	srv := httptest.NewServer(http.NotFoundHandler())
	dead := srv.URL
	srv.Close()

	inv := New(2 * time.Second)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: dead}

	_, err := inv.InvokeSync(context.Background(), ep, testPayload())
	if !errors.Is(err, apperrors.ErrEndpointUnreachable) {
		t.Fatalf("error = %v, want ErrEndpointUnreachable", err)
	}
}

func TestInvokeSyncMalformedResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing key", `{"something_else": "x"}`},
		{"empty key", `{"result_image_key": ""}`},
		{"not json", `<html>gateway error</html>`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			inv := New(5 * time.Second)
			ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

			_, err := inv.InvokeSync(context.Background(), ep, testPayload())
			if !errors.Is(err, apperrors.ErrMalformedResponse) {
				t.Fatalf("error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestInvokeSyncDeadline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	inv := New(time.Minute)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := inv.InvokeSync(ctx, ep, testPayload())
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tryon" {
			t.Errorf("path = %q, want /api/v1/tryon", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"prompt_id": "p-123"})
	}))
	defer srv.Close()

	inv := New(5 * time.Second)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	handle, err := inv.Submit(context.Background(), ep, testPayload())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if handle.PromptID != "p-123" {
		t.Errorf("PromptID = %q, want p-123", handle.PromptID)
	}
}

func TestSubmitAcceptsLegacyIDField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "j-456"})
	}))
	defer srv.Close()

	inv := New(5 * time.Second)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	handle, err := inv.Submit(context.Background(), ep, testPayload())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if handle.PromptID != "j-456" {
		t.Errorf("PromptID = %q, want j-456", handle.PromptID)
	}
}

func TestSubmitMissingCorrelationID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	inv := New(5 * time.Second)
	ep := &endpoint.Endpoint{ID: "ep-1", BaseURL: srv.URL}

	_, err := inv.Submit(context.Background(), ep, testPayload())
	if !errors.Is(err, apperrors.ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
}
