// Package blob stores channel images in an S3-compatible bucket. Requests
// are signed with SigV4 directly so the server works against AWS, MinIO,
// and the storage gateways the hosting provider exposes, without pulling
// in a full SDK.
package blob

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// Config describes the target bucket. Endpoint and Bucket are required for
// a working client; leaving either empty yields a disabled client so
// deployments without object storage still start.
type Config struct {
	Endpoint       string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	Region         string
	PublicEndpoint string
	UseSSL         bool
	RequestTimeout time.Duration
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return c.RequestTimeout
}

// Object identifies a stored blob and, when a public endpoint is
// configured, the URL clients can fetch it from.
type Object struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Client uploads channel images. Implementations must be safe for
// concurrent use.
type Client interface {
	// Enabled reports whether uploads are actually stored anywhere.
	Enabled() bool
	Upload(ctx context.Context, key, contentType string, body []byte) (Object, error)
}

// NewClient builds a client for the configured bucket, or a disabled one
// when the configuration is incomplete.
func NewClient(cfg Config) Client {
	bucket := strings.TrimSpace(cfg.Bucket)
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if bucket == "" || endpoint == "" {
		return disabledClient{}
	}
	if strings.Contains(endpoint, "://") {
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.Host
		}
	}
	if endpoint == "" {
		return disabledClient{}
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	cfg.Bucket = bucket
	return &s3Client{
		cfg:  cfg,
		base: &url.URL{Scheme: scheme, Host: endpoint},
		http: newHTTPClient(cfg.requestTimeout()),
	}
}

type disabledClient struct{}

func (disabledClient) Enabled() bool { return false }

func (disabledClient) Upload(context.Context, string, string, []byte) (Object, error) {
	return Object{}, fmt.Errorf("object storage is not configured")
}
