package outputcache

import (
	"bytes"
	"net/http"
	"strings"
	"time"
)

// Response is a cached HTTP response.
type Response struct {
	Status int         `msgpack:"s"`
	Header http.Header `msgpack:"h"`
	Body   []byte      `msgpack:"b"`
}

type MiddlewareOptions struct {
	// TTL of stored responses. 0 => never expire.
	TTL time.Duration

	// Headers copied into the cached response. Defaults to Content-Type.
	Headers []string

	// Key maps a request to its raw cache key.
	// Defaults to method + " " + host + request URI.
	Key func(*http.Request) string
}

// Middleware serves GET and HEAD requests from c. Misses are rendered by next
// and stored through Add when the status is 200, Cache-Control carries neither
// no-store nor private, and no cookie is being set. Served hits carry
// "X-Cache: HIT", rendered responses "X-Cache: MISS".
func Middleware(c *Cache[Response], opts MiddlewareOptions) func(http.Handler) http.Handler {
	headers := opts.Headers
	if len(headers) == 0 {
		headers = []string{"Content-Type"}
	}
	keyOf := opts.Key
	if keyOf == nil {
		keyOf = defaultKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := keyOf(r)

			// Errors here were already handled by the policy; render fresh.
			if cached, ok, err := c.Get(ctx, key); err == nil && ok {
				writeCached(w, r, cached)
				return
			}

			w.Header().Set("X-Cache", "MISS")
			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status != http.StatusOK || !shareable(w.Header()) {
				return
			}
			resp := Response{Status: rec.status, Header: http.Header{}, Body: rec.body.Bytes()}
			for _, h := range headers {
				if vs := w.Header().Values(h); len(vs) > 0 {
					resp.Header[http.CanonicalHeaderKey(h)] = append([]string(nil), vs...)
				}
			}
			var exp time.Time
			if opts.TTL > 0 {
				exp = c.now().Add(opts.TTL).UTC()
			}
			_, _ = c.Add(ctx, key, resp, exp)
		})
	}
}

func defaultKey(r *http.Request) string {
	return r.Method + " " + r.Host + r.URL.RequestURI()
}

func writeCached(w http.ResponseWriter, r *http.Request, resp Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Cache", "HIT")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

// shareable reports whether a response may be replayed to other clients.
func shareable(h http.Header) bool {
	if len(h.Values("Set-Cookie")) > 0 {
		return false
	}
	for _, v := range h.Values("Cache-Control") {
		for _, d := range strings.Split(v, ",") {
			name, _, _ := strings.Cut(strings.TrimSpace(d), "=")
			switch strings.ToLower(name) {
			case "no-store", "private":
				return false
			}
		}
	}
	return true
}

// recorder passes the response through to the client and keeps a copy.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
