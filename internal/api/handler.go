// Package api provides the HTTP handlers and routing for the try-on service.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"vton/internal/apperrors"
	"vton/internal/health"
	"vton/internal/tryon"
)

// maxRequestBodySize bounds request bodies. Two base64 images plus JSON
// framing fit comfortably under 32MB.
const maxRequestBodySize = 32 << 20

// Submitter runs one try-on job to completion.
type Submitter interface {
	Submit(ctx context.Context, req *tryon.Request) (*tryon.Result, error)
}

// Handler contains the HTTP handlers for the try-on API.
type Handler struct {
	coordinator Submitter
	health      *health.Checker
}

// NewHandler creates an API handler.
func NewHandler(coordinator Submitter, healthChecker *health.Checker) *Handler {
	return &Handler{
		coordinator: coordinator,
		health:      healthChecker,
	}
}

// tryonRequest is the JSON request body. Images arrive base64-encoded or as
// object store keys. mask_type is a deprecated alias for cloth_type kept for
// older clients; it is never forwarded.
type tryonRequest struct {
	PersonImage     string `json:"person_image,omitempty"`
	GarmentImage    string `json:"garment_image,omitempty"`
	PersonImageKey  string `json:"person_image_key,omitempty"`
	GarmentImageKey string `json:"garment_image_key,omitempty"`
	ClothType       string `json:"cloth_type,omitempty"`
	MaskType        string `json:"mask_type,omitempty"`
	Seed            *int64 `json:"seed,omitempty"`
}

// tryonResponse is the JSON response body. Exactly one field is set,
// depending on the configured delivery mode.
type tryonResponse struct {
	ResultImage    string `json:"result_image,omitempty"`
	ResultImageKey string `json:"result_image_key,omitempty"`
}

// Tryon handles POST /api/tryon (and its /api/v1/tryon alias).
func (h *Handler) Tryon(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var (
		req *tryon.Request
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = decodeMultipart(r)
	} else {
		req, err = decodeJSON(r)
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	res, err := h.coordinator.Submit(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := tryonResponse{ResultImageKey: res.Key}
	if res.Inline != nil {
		resp = tryonResponse{ResultImage: base64.StdEncoding.EncodeToString(res.Inline)}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Ping handles GET /ping - the readiness probe.
// Returns 200 {"status":"healthy"} once the store client and endpoint set
// are usable, 503 while starting up or draining.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// decodeJSON builds a job request from a JSON body.
func decodeJSON(r *http.Request) (*tryon.Request, error) {
	var body tryonRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, apperrors.Validation("body", "invalid request body: "+err.Error())
	}

	person, err := decodeImage("person_image", body.PersonImage)
	if err != nil {
		return nil, err
	}
	garment, err := decodeImage("garment_image", body.GarmentImage)
	if err != nil {
		return nil, err
	}

	clothType := body.ClothType
	if clothType == "" {
		clothType = body.MaskType
	}

	seed := int64(tryon.SeedRandom)
	if body.Seed != nil {
		seed = *body.Seed
	}

	return &tryon.Request{
		Person:     person,
		Garment:    garment,
		PersonKey:  body.PersonImageKey,
		GarmentKey: body.GarmentImageKey,
		ClothType:  clothType,
		Seed:       seed,
	}, nil
}

// decodeMultipart builds a job request from a multipart form with person and
// cloth file parts.
func decodeMultipart(r *http.Request) (*tryon.Request, error) {
	if err := r.ParseMultipartForm(maxRequestBodySize); err != nil {
		return nil, apperrors.Validation("body", "invalid multipart form: "+err.Error())
	}

	person, err := readFilePart(r, "person")
	if err != nil {
		return nil, err
	}
	garment, err := readFilePart(r, "cloth")
	if err != nil {
		return nil, err
	}

	clothType := r.FormValue("cloth_type")
	if clothType == "" {
		clothType = r.FormValue("mask_type")
	}

	seed := int64(tryon.SeedRandom)
	if raw := r.FormValue("seed"); raw != "" {
		seed, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, apperrors.Validation("seed", "seed must be an integer")
		}
	}

	return &tryon.Request{
		Person:    person,
		Garment:   garment,
		ClothType: clothType,
		Seed:      seed,
	}, nil
}

func decodeImage(field, encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.Validation(field, "must be base64-encoded")
	}
	return data, nil
}

func readFilePart(r *http.Request, name string) ([]byte, error) {
	file, _, err := r.FormFile(name)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, apperrors.Validation(name, "invalid file part: "+err.Error())
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperrors.Validation(name, "unreadable file part: "+err.Error())
	}
	return data, nil
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps coordinator errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
