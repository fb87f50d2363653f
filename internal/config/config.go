// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// Result delivery representations for the submission API.
const (
	DeliveryInline = "inline" // base64 bytes in the response body
	DeliveryKey    = "key"    // object-store key in the response body
)

// Completion detection strategies.
const (
	CompletionSync = "sync" // worker responds inline on the invocation call
	CompletionPush = "push" // worker announces completion over a push channel
)

// ServiceConfig holds configuration for the try-on gateway.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	JobTimeout        time.Duration // Wall-clock bound for one job lifecycle
	MaxConcurrentJobs int           // Admission gate size
	ResultDelivery    string        // DeliveryInline or DeliveryKey
	CompletionMode    string        // CompletionSync or CompletionPush
	ScratchDir        string        // Base directory for per-job scratch files
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	cfg := &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		JobTimeout:        GetDurationEnv("JOB_TIMEOUT", 5*time.Minute),
		MaxConcurrentJobs: GetIntEnv("MAX_CONCURRENT_JOBS", 8),
		ResultDelivery:    GetEnv("RESULT_DELIVERY", DeliveryInline),
		CompletionMode:    GetEnv("COMPLETION_MODE", CompletionSync),
		ScratchDir:        GetEnv("SCRATCH_DIR", ""),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = GetEnv("API_KEY", "")
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero or invalid values with defaults.
func (c *ServiceConfig) withDefaults() *ServiceConfig {
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 8
	}
	if c.ResultDelivery != DeliveryKey {
		c.ResultDelivery = DeliveryInline
	}
	if c.CompletionMode != CompletionPush {
		c.CompletionMode = CompletionSync
	}
	return c
}

// StoreConfig holds object store connection settings.
// The bucket is the shared data-plane between the gateway and compute workers.
type StoreConfig struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
}

// LoadStoreConfig loads object store configuration from environment variables.
func LoadStoreConfig() *StoreConfig {
	return &StoreConfig{
		EndpointURL:     GetEnv("S3_ENDPOINT_URL", ""),
		AccessKeyID:     GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Bucket:          GetEnv("S3_BUCKET", ""),
		Region:          GetEnv("S3_REGION", "eu-ro-1"),
	}
}

// Complete reports whether every required store setting is present.
func (c *StoreConfig) Complete() bool {
	return c.EndpointURL != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.Bucket != ""
}
