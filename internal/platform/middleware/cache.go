package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Conditional GET support. Frontends poll encounter, order, and document
// lists while work is in progress; an ETag turns the unchanged poll into
// a 304 with no body on the wire.

// CacheConfig controls ETag and Cache-Control behavior for reads.
type CacheConfig struct {
	// MaxAge is the freshness window in seconds advertised to clients.
	MaxAge int
	// Vary lists request headers the cached representation depends on.
	Vary []string
	// SkipPrefixes are read paths whose responses change on every call
	// and must never carry a validator.
	SkipPrefixes []string
}

// DefaultCacheConfig suits the list and detail endpoints of this API.
// Responses are always private: they carry patient data and are scoped
// to the caller's tenant and token.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:       30,
		Vary:         []string{"Accept", "Authorization", "X-Tenant-ID"},
		SkipPrefixes: []string{"/api/v1/quota"},
	}
}

// etagBuffer captures the handler's response so its ETag can be computed
// before anything reaches the client.
type etagBuffer struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (b *etagBuffer) Write(p []byte) (int, error) { return b.body.Write(p) }

func (b *etagBuffer) WriteHeader(code int) { b.status = code }

// Flush is a no-op; nothing leaves the buffer until the ETag is settled.
func (b *etagBuffer) Flush() {}

func (b *etagBuffer) release() error {
	b.ResponseWriter.WriteHeader(b.status)
	if b.body.Len() == 0 {
		return nil
	}
	_, err := b.ResponseWriter.Write(b.body.Bytes())
	return err
}

// ETagMiddleware hashes successful GET and HEAD responses into a strong
// ETag and answers If-None-Match revisits with 304 Not Modified.
func ETagMiddleware(cfg CacheConfig) echo.MiddlewareFunc {
	cacheControl := fmt.Sprintf("private, max-age=%d", cfg.MaxAge)
	vary := strings.Join(cfg.Vary, ", ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			for _, prefix := range cfg.SkipPrefixes {
				if strings.HasPrefix(req.URL.Path, prefix) {
					return next(c)
				}
			}

			res := c.Response()
			plain := res.Writer
			buf := &etagBuffer{ResponseWriter: plain, status: http.StatusOK}
			res.Writer = buf

			err := next(c)
			res.Writer = plain
			if err != nil {
				return err
			}
			if buf.status >= 300 {
				return buf.release()
			}

			res.Header().Set("Cache-Control", cacheControl)
			if vary != "" {
				res.Header().Set("Vary", vary)
			}

			etag := strongETag(buf.body.Bytes())
			res.Header().Set("ETag", etag)
			if etagMatches(req.Header.Get("If-None-Match"), etag) {
				plain.WriteHeader(http.StatusNotModified)
				return nil
			}
			return buf.release()
		}
	}
}

// strongETag derives the validator from the response bytes, so two
// identical renderings of a list compare equal across server restarts.
func strongETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// etagMatches implements If-None-Match comparison: a comma-separated
// candidate list, the "*" wildcard, and weak validators (W/ prefix) that
// compare equal to their strong form.
func etagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if strings.TrimPrefix(candidate, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
