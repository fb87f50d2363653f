// Package invoker issues job-submission calls to compute endpoints. Requests
// carry object-store keys and parameters, never raw image bytes.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"vton/internal/apperrors"
	"vton/internal/endpoint"
)

// Worker routes. The -s3 route blocks until the pipeline finishes and
// returns the output key in the same response; the plain route acknowledges
// with a correlation id and announces completion over the push channel.
const (
	syncRoute   = "/api/v1/tryon-s3"
	submitRoute = "/api/v1/tryon"
)

// maxErrorBodyBytes bounds how much of a worker error response is surfaced.
const maxErrorBodyBytes = 4 << 10

// Payload is the job-submission body sent to a worker.
type Payload struct {
	PersonImageKey  string `json:"person_image_key"`
	GarmentImageKey string `json:"garment_image_key"`
	ClothType       string `json:"cloth_type"`
	Seed            int64  `json:"seed"`
}

// JobHandle correlates an asynchronous submission with its completion
// announcement on the push channel.
type JobHandle struct {
	PromptID string
}

// Invoker sends job submissions over a shared HTTP client.
type Invoker struct {
	client *http.Client
}

// New creates an invoker. The timeout bounds the whole round-trip, so for
// synchronous invocations it must cover worker cold start plus inference.
func New(timeout time.Duration) *Invoker {
	return &Invoker{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// InvokeSync submits a job and blocks until the worker responds with the
// result key (Strategy A). The context deadline is the job deadline.
func (i *Invoker) InvokeSync(ctx context.Context, ep *endpoint.Endpoint, p *Payload) (string, error) {
	body, err := i.post(ctx, ep, syncRoute, p)
	if err != nil {
		return "", err
	}

	var resp struct {
		ResultImageKey string `json:"result_image_key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.Malformed(ep.ID, "invalid JSON in worker response: "+err.Error())
	}
	if resp.ResultImageKey == "" {
		return "", apperrors.Malformed(ep.ID, "worker response missing result_image_key")
	}
	return resp.ResultImageKey, nil
}

// Submit submits a job and returns immediately with a correlation handle
// (Strategy B). Completion arrives on the push channel.
func (i *Invoker) Submit(ctx context.Context, ep *endpoint.Endpoint, p *Payload) (*JobHandle, error) {
	body, err := i.post(ctx, ep, submitRoute, p)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID       string `json:"id"`
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.Malformed(ep.ID, "invalid JSON in worker acknowledgement: "+err.Error())
	}
	id := resp.PromptID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return nil, apperrors.Malformed(ep.ID, "worker acknowledgement missing correlation id")
	}
	return &JobHandle{PromptID: id}, nil
}

// post sends one JSON request and classifies the outcome: connection-level
// failures are ErrEndpointUnreachable, non-2xx statuses are
// ErrRemoteRejected, deadline expiry is ErrTimeout.
func (i *Invoker) post(ctx context.Context, ep *endpoint.Endpoint, route string, p *Payload) ([]byte, error) {
	reqBody, err := json.Marshal(p)
	if err != nil {
		return nil, apperrors.Internal("invoker.marshal", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.BaseURL+route, bytes.NewReader(reqBody))
	if err != nil {
		return nil, apperrors.Internal("invoker.request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ep.Token)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.Timeout("invoker.post " + route)
		}
		return nil, apperrors.Unreachable(ep.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, apperrors.RemoteRejected(ep.ID, resp.StatusCode, string(bytes.TrimSpace(msg)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Unreachable(ep.ID, err)
	}
	return body, nil
}
