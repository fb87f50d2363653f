// Package endpoint holds the configured compute endpoint set and the
// per-job selector. Endpoints are loaded once at startup and never mutated.
package endpoint

import (
	"fmt"
	"strings"

	"vton/internal/config"
)

// Endpoint is one remote compute service. Immutable after load.
type Endpoint struct {
	ID      string
	BaseURL string
	Token   string
}

// defaultURLTemplate expands a bare endpoint identifier into a base URL.
const defaultURLTemplate = "https://%s.api.runpod.ai"

// LoadFromEnv reads the endpoint set from COMPUTE_ENDPOINTS, a comma list
// of entries shaped "id" or "id=url". Bare ids expand through
// COMPUTE_ENDPOINT_URL_TEMPLATE. Entries with an empty identifier are
// dropped. The shared bearer token comes from COMPUTE_API_KEY.
func LoadFromEnv() []Endpoint {
	template := config.GetEnv("COMPUTE_ENDPOINT_URL_TEMPLATE", defaultURLTemplate)
	token := config.GetSecretFile(config.GetEnv("COMPUTE_API_KEY_FILE", ""))
	if token == "" {
		token = config.GetEnv("COMPUTE_API_KEY", "")
	}

	var endpoints []Endpoint
	for _, entry := range config.GetListEnv("COMPUTE_ENDPOINTS") {
		id, url, found := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !found || strings.TrimSpace(url) == "" {
			url = fmt.Sprintf(template, id)
		}
		endpoints = append(endpoints, Endpoint{
			ID:      id,
			BaseURL: strings.TrimSuffix(strings.TrimSpace(url), "/"),
			Token:   token,
		})
	}
	return endpoints
}
