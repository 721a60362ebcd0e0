package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dailyform/internal/form"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reports over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// keyedMutex serializes work per key. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires key and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// buildRouter wires the HTTP API. Forms sharing a (type, id) key render one
// at a time so their write-backs do not interleave.
func buildRouter(env *formEnv, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	locks := newKeyedMutex()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/breakers", func(w http.ResponseWriter, _ *http.Request) {
		out := map[string]string{}
		for name, st := range env.Guard.States() {
			out[name] = st.String()
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/forms/{id}/report", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		q := req.URL.Query()

		date, err := parseDate(q.Get("date"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		html := q.Get("format") == "html"

		key := form.Key{Type: env.Config.Form.Type, ID: id}
		unlock := locks.Lock(key.String())
		defer unlock()

		f, out, err := env.renderOnce(req.Context(), reportRequest{
			formRequest: formRequest{
				ID:       id,
				Date:     date,
				Zip:      q.Get("zip"),
				Failures: splitList(q.Get("fail")),
			},
			HTML: html,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, form.ErrCorrupt) || errors.Is(err, form.ErrReservedKey) {
				status = http.StatusUnprocessableEntity
			}
			zap.L().Error("render report failed", zap.Stringer("key", key), zap.Error(err))
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}

		if errs := f.Errors(); len(errs) > 0 {
			w.Header().Set("X-Form-Errors", strings.Join(slices.Sorted(maps.Keys(errs)), ","))
		}
		w.Header().Set("X-Form-State", f.State().String())
		if html {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out))
	})

	r.Get("/forms/{id}/facts", func(w http.ResponseWriter, req *http.Request) {
		key := form.Key{Type: env.Config.Form.Type, ID: chi.URLParam(req, "id")}
		facts, ok, err := env.Store.Load(req.Context(), key)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no facts for " + key.String()})
			return
		}
		writeJSON(w, http.StatusOK, facts)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// splitList parses a comma-separated capability list, e.g. "weather,todo".
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
