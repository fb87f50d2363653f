// Package observability provides metrics instrumentation.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrClothType = "cloth_type"
	attrSuccess   = "success"
	attrOp        = "op"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func clothTypeAttr(clothType string) attribute.KeyValue {
	return attribute.String(attrClothType, clothType)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func opAttr(op string) attribute.KeyValue {
	return attribute.String(attrOp, op)
}

// normalizePath collapses anything outside the known route set so a scanner
// probing random paths cannot blow up metric cardinality.
func normalizePath(path string) string {
	switch {
	case path == "/ping", path == "/api/tryon", path == "/api/v1/tryon":
		return path
	case strings.HasPrefix(path, "/api/"):
		return "/api/{other}"
	default:
		return "{other}"
	}
}
