package blob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type s3Client struct {
	cfg  Config
	base *url.URL
	http *http.Client
	// now is swapped in signing tests for deterministic dates.
	now func() time.Time
}

func (c *s3Client) Enabled() bool { return true }

func (c *s3Client) Upload(ctx context.Context, key, contentType string, body []byte) (Object, error) {
	objectKey := c.prefixedKey(key)
	target := c.objectURL(objectKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), bytes.NewReader(body))
	if err != nil {
		return Object{}, fmt.Errorf("build upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.sign(req, sha256Hex(body))

	resp, err := c.http.Do(req)
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", objectKey, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Object{}, fmt.Errorf("upload %s: unexpected status %d", objectKey, resp.StatusCode)
	}
	return Object{Key: objectKey, URL: c.publicURL(objectKey)}, nil
}

func (c *s3Client) prefixedKey(key string) string {
	cleaned := strings.TrimLeft(strings.TrimSpace(key), "/")
	prefix := strings.Trim(strings.TrimSpace(c.cfg.Prefix), "/")
	switch {
	case prefix == "":
		return cleaned
	case cleaned == "":
		return prefix
	case cleaned == prefix, strings.HasPrefix(cleaned, prefix+"/"):
		return cleaned
	default:
		return prefix + "/" + cleaned
	}
}

func (c *s3Client) objectURL(key string) *url.URL {
	u := *c.base
	path := strings.TrimRight(u.Path, "/") + "/" + c.cfg.Bucket
	if trimmed := strings.TrimLeft(key, "/"); trimmed != "" {
		path += "/" + trimmed
	}
	u.Path = path
	return &u
}

func (c *s3Client) publicURL(key string) string {
	base := strings.TrimRight(strings.TrimSpace(c.cfg.PublicEndpoint), "/")
	if base == "" {
		return ""
	}
	trimmed := strings.TrimLeft(key, "/")
	if trimmed == "" {
		return base
	}
	return base + "/" + trimmed
}

// sign applies AWS SigV4 to the request. With no credentials configured the
// request is left anonymous, which suits gateways fronted by network ACLs.
func (c *s3Client) sign(req *http.Request, payloadHash string) {
	req.Host = req.URL.Host
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	accessKey := strings.TrimSpace(c.cfg.AccessKey)
	secretKey := strings.TrimSpace(c.cfg.SecretKey)
	if accessKey == "" || secretKey == "" {
		return
	}
	region := strings.TrimSpace(c.cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	now := time.Now().UTC()
	if c.now != nil {
		now = c.now().UTC()
	}
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	req.Header.Set("x-amz-date", amzDate)

	headerLines, signedHeaders := canonicalHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalPath(req.URL),
		canonicalQuery(req.URL),
		headerLines,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := dateStamp + "/" + region + "/s3/aws4_request"
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	key := []byte("AWS4" + secretKey)
	for _, part := range []string{dateStamp, region, "s3", "aws4_request"} {
		key = hmacSHA256(key, part)
	}
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		accessKey, scope, signedHeaders, signature,
	))
}

func canonicalHeaders(req *http.Request) (string, string) {
	byName := make(map[string]string)
	for name, values := range req.Header {
		lower := strings.ToLower(name)
		if lower == "authorization" {
			continue
		}
		trimmed := make([]string, 0, len(values))
		for _, v := range values {
			trimmed = append(trimmed, strings.TrimSpace(v))
		}
		byName[lower] = strings.Join(trimmed, ",")
	}
	if _, ok := byName["host"]; !ok && req.Host != "" {
		byName["host"] = req.Host
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines strings.Builder
	for _, name := range names {
		lines.WriteString(name)
		lines.WriteByte(':')
		lines.WriteString(byName[name])
		lines.WriteByte('\n')
	}
	return lines.String(), strings.Join(names, ";")
}

func canonicalPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func canonicalQuery(u *url.URL) string {
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil || len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(values))
	for _, key := range keys {
		sort.Strings(values[key])
		for _, value := range values[key] {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
		}
	}
	return strings.Join(parts, "&")
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
