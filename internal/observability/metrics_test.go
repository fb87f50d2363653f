package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/ping", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/tryon", 200, 25.0)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/v1/tryon", 502, 0.5)
	metrics.RecordHTTPRequest(ctx, "GET", "/api/does-not-exist", 404, 0.001)
}

func TestRecordJobMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordJobAdmitted(ctx, "upper")
	metrics.RecordJobAdmitted(ctx, "overall")
	metrics.RecordJobCompleted(ctx, "upper", true, 18.5)
	metrics.RecordJobCompleted(ctx, "overall", false, 300.0)
	metrics.RecordStoreOp(ctx, "put", nil, 0.12)
	metrics.RecordStoreOp(ctx, "get", errors.New("boom"), 0.3)
	metrics.RecordCleanupDeleted(ctx)
	metrics.RecordCleanupFailed(ctx)
	metrics.RecordCleanupQueueSize(ctx, 3)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/ping", "/ping"},
		{"/api/tryon", "/api/tryon"},
		{"/api/v1/tryon", "/api/v1/tryon"},
		{"/api/v1/tryon/extra", "/api/{other}"},
		{"/wp-admin.php", "{other}"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
