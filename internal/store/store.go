// Package store provides the object store client used as the data-plane
// for job payloads. Large blobs move through a shared bucket; control-plane
// calls carry only keys.
package store

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Key namespaces within the shared bucket. Callers must treat keys as
// opaque beyond these prefixes.
const (
	UploadPrefix = "uploads/"
	ResultPrefix = "results/"
)

// ObjectRef identifies a blob in the shared store.
type ObjectRef struct {
	Bucket string
	Key    string
}

func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Key
}

// Client is the minimal contract the orchestrator needs from object storage.
// Implementations must surface apperrors.ErrNotFound for missing objects,
// distinguishable from transport or auth failures (apperrors.ErrStorage).
type Client interface {
	Put(ctx context.Context, ref ObjectRef, data []byte) error
	Get(ctx context.Context, ref ObjectRef) ([]byte, error)
	Exists(ctx context.Context, ref ObjectRef) (bool, error)
	Remove(ctx context.Context, ref ObjectRef) error

	// Ready verifies the store is reachable, for readiness probes.
	Ready(ctx context.Context) error
}

// UploadKey builds an input key: uploads/<kind>_<uuid>.<ext>.
// The embedded uuid guarantees no two in-flight jobs share a key.
func UploadKey(kind, id, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("%s%s_%s.%s", UploadPrefix, kind, id, ext)
}

// ResultKey builds an output key: results/result_<uuid>.png.
func ResultKey(id string) string {
	return fmt.Sprintf("%sresult_%s.png", ResultPrefix, id)
}

// NormalizeResultKey anchors a worker-reported output reference under the
// results namespace. Workers may report a bare filename or a full key.
func NormalizeResultKey(ref string) string {
	if strings.HasPrefix(ref, ResultPrefix) {
		return ref
	}
	return path.Join(strings.TrimSuffix(ResultPrefix, "/"), ref)
}

// NewID returns a fresh job-scoped identifier, hex without dashes to match
// the key layout.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
