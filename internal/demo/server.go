// Package demo is a small HTTP application built on distcache: it stores the
// server start time and a "CacheTime" value in the distributed cache, exposes a
// byte key/value API, and serves one page through the output cache.
package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/unkn0wn-root/distcache"
	"github.com/unkn0wn-root/distcache/outputcache"
)

const (
	keyCacheTime       = "CacheTime"
	keyLastServerStart = "lastServerStartTime"

	HeaderServerStart = "X-Last-Server-Start-Time"

	maxValueBytes = 1 << 20
)

type Server struct {
	kv      distcache.DistributedCache
	pages   *outputcache.Cache[outputcache.Response]
	pageTTL time.Duration
	log     distcache.Logger
	now     func() time.Time
	router  *mux.Router
}

type Options struct {
	KV      distcache.DistributedCache // required
	Pages   *outputcache.Cache[outputcache.Response]
	PageTTL time.Duration
	Logger  distcache.Logger
	Clock   func() time.Time
}

func NewServer(opts Options) (*Server, error) {
	if opts.KV == nil {
		return nil, fmt.Errorf("demo: kv cache is required")
	}
	s := &Server{
		kv:      opts.KV,
		pages:   opts.Pages,
		pageTTL: opts.PageTTL,
		log:     opts.Logger,
		now:     opts.Clock,
	}
	if s.log == nil {
		s.log = distcache.NopLogger{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// RecordStart stores the server start time; every response then carries it
// in HeaderServerStart.
func (s *Server) RecordStart(ctx context.Context) error {
	return s.kv.Set(ctx, keyLastServerStart, []byte(s.now().UTC().Format(time.RFC3339)), nil)
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.startTimeHeader)

	r.HandleFunc("/", s.index).Methods(http.MethodGet)
	r.HandleFunc("/about", s.about).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	contact := http.Handler(http.HandlerFunc(s.contact))
	if s.pages != nil {
		contact = outputcache.Middleware(s.pages, outputcache.MiddlewareOptions{TTL: s.pageTTL})(contact)
	}
	r.Handle("/contact", contact).Methods(http.MethodGet, http.MethodHead)

	kv := r.PathPrefix("/kv").Subrouter()
	kv.HandleFunc("/{key}", s.getKey).Methods(http.MethodGet)
	kv.HandleFunc("/{key}", s.putKey).Methods(http.MethodPut)
	kv.HandleFunc("/{key}", s.deleteKey).Methods(http.MethodDelete)
	kv.HandleFunc("/{key}/refresh", s.refreshKey).Methods(http.MethodPost)

	s.router = r
}

func (s *Server) startTimeHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v, ok, err := s.kv.Get(r.Context(), keyLastServerStart); err == nil && ok {
			w.Header().Set(HeaderServerStart, string(v))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	now := s.now().UTC().Format(time.RFC3339)
	if err := s.kv.Set(r.Context(), keyCacheTime, []byte(now), nil); err != nil {
		s.fail(w, "set cache time", err)
		return
	}
	writeText(w, http.StatusOK, "Cache time stored: "+now)
}

func (s *Server) about(w http.ResponseWriter, r *http.Request) {
	v, ok, err := s.kv.Get(r.Context(), keyCacheTime)
	if err != nil {
		s.fail(w, "get cache time", err)
		return
	}
	msg := "Your application description page. "
	if ok {
		msg += string(v)
	} else {
		msg += "(cache time not set)"
	}
	writeText(w, http.StatusOK, msg)
}

func (s *Server) contact(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "Your contact page. Rendered at "+s.now().UTC().Format(time.RFC3339Nano))
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	v, ok, err := s.kv.Get(r.Context(), key)
	if err != nil {
		s.fail(w, "get", err)
		return
	}
	if !ok {
		writeText(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(v)
}

// putKey stores the request body. ?ttl=30s sets a sliding expiration.
func (s *Server) putKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var opts *distcache.EntryOptions
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			writeText(w, http.StatusBadRequest, "ttl must be a positive duration")
			return
		}
		opts = &distcache.EntryOptions{SlidingExpiration: ttl}
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxValueBytes+1))
	if err != nil {
		writeText(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) > maxValueBytes {
		writeText(w, http.StatusRequestEntityTooLarge, "value too large")
		return
	}
	if err := s.kv.Set(r.Context(), key, body, opts); err != nil {
		s.fail(w, "set", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	if err := s.kv.Remove(r.Context(), mux.Vars(r)["key"]); err != nil {
		s.fail(w, "remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshKey(w http.ResponseWriter, r *http.Request) {
	if err := s.kv.Refresh(r.Context(), mux.Vars(r)["key"]); err != nil {
		s.fail(w, "refresh", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, distcache.ErrInvalidArgument) {
		status = http.StatusBadRequest
	}
	s.log.Error("request failed", distcache.Fields{"op": op, "err": err})
	writeText(w, status, http.StatusText(status))
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
