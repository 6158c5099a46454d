// Package imagefetch resolves image references for model consumption.
//
// DESIGN: Images stored on the caller's own host cannot be reached by a remote
// model, so they are fetched and inlined as base64 data URIs. Every other
// URL (and any existing data URI) is passed through untouched.
//
// FLOW:
//
//	Resolve(url)
//	  ├─ data: URI        → url
//	  ├─ local host       → Fetch → "data:<mime>;base64,<payload>"
//	  └─ anything else    → url
package imagefetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// LoopbackHost is the host treated as local storage by default.
const LoopbackHost = "127.0.0.1"

// Defaults for HTTPFetcher.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 20 << 20
)

// ErrTooLarge is returned when an image exceeds the configured size limit.
var ErrTooLarge = errors.New("image exceeds size limit")

// Fetcher retrieves raw image bytes and their MIME type.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (data []byte, mimeType string, err error)
}

// =============================================================================
// URL HELPERS
// =============================================================================

// IsLocalURL reports whether rawURL is an http(s) URL whose host is the
// loopback address or one of extraHosts.
func IsLocalURL(rawURL string, extraHosts ...string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == LoopbackHost {
		return true
	}
	for _, h := range extraHosts {
		if h != "" && strings.EqualFold(host, h) {
			return true
		}
	}
	return false
}

// IsDataURI reports whether s is already an inline data URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// ParseDataURI splits a base64 data URI into its MIME type and decoded bytes.
func ParseDataURI(s string) (mimeType string, data []byte, err error) {
	if !IsDataURI(s) {
		return "", nil, fmt.Errorf("not a data uri")
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("data uri missing payload separator")
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data uri is not base64 encoded")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data uri: %w", err)
	}
	return mimeType, data, nil
}

// EncodeDataURI builds "data:<mime>;base64,<payload>".
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// =============================================================================
// HTTP FETCHER
// =============================================================================

// HTTPFetcher fetches images over HTTP.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher. A zero timeout or maxBytes uses the default.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads rawURL. The MIME type comes from Content-Type when it names
// an image, otherwise it is sniffed from the payload.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", ErrTooLarge
	}

	return data, detectMIME(resp.Header.Get("Content-Type"), data), nil
}

func detectMIME(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver turns image references into URLs a model can consume.
type Resolver struct {
	fetcher    Fetcher
	localHosts []string
}

// NewResolver creates a resolver. localHosts extends the loopback address.
func NewResolver(fetcher Fetcher, localHosts ...string) *Resolver {
	return &Resolver{fetcher: fetcher, localHosts: localHosts}
}

// IsLocal reports whether rawURL points at local storage.
func (r *Resolver) IsLocal(rawURL string) bool {
	return IsLocalURL(rawURL, r.localHosts...)
}

// Resolve returns a data URI for local images and rawURL otherwise.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("empty image url")
	}
	if IsDataURI(rawURL) || !r.IsLocal(rawURL) {
		return rawURL, nil
	}
	if r.fetcher == nil {
		return "", fmt.Errorf("no fetcher configured for local image %s", rawURL)
	}

	data, mimeType, err := r.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", rawURL, err)
	}
	return EncodeDataURI(mimeType, data), nil
}
