package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quest-engine/internal/config"
	"github.com/gokatarajesh/quest-engine/internal/logging"
	httperrors "github.com/gokatarajesh/quest-engine/pkg/http/errors"
)

// Pinger is a dependency checked by /v1/ping.
type Pinger func(ctx context.Context) error

// Registrar mounts a group of routes, wrapping each with protect.
type Registrar interface {
	Register(mux *http.ServeMux, protect func(http.Handler) http.Handler)
}

// Routes are the feature handlers mounted by NewHTTPServer. Nil members are
// skipped.
type Routes struct {
	// Protect wraps every /v1 and /ws route with bearer authentication.
	Protect     func(http.Handler) http.Handler
	Quests      Registrar
	Sessions    http.Handler
	Leaderboard http.HandlerFunc
	Pingers     map[string]Pinger
}

// NewWSUpgrader builds the session socket upgrader. Browser origins must be
// in allowed; requests without an Origin header come from non-browser clients
// and are accepted.
func NewWSUpgrader(allowed []string) *websocket.Upgrader {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[strings.TrimSpace(o)] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, wildcard := origins["*"]; wildcard {
				return true
			}
			_, ok := origins[origin]
			return ok
		},
	}
}

// NewHTTPServer wires base routes (health, metrics) and the feature routes.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, routes Routes) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if name, err := pingDependencies(ctx, routes.Pingers); err != nil {
			logging.FromContext(ctx).Error().Err(err).Str("dependency", name).Msg("dependency ping failed")
			httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeUpstreamError, name+" unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	protect := routes.Protect
	if protect == nil {
		protect = func(h http.Handler) http.Handler { return h }
	}

	if routes.Quests != nil {
		routes.Quests.Register(mux, protect)
	}
	if routes.Sessions != nil {
		mux.Handle("GET /ws/sessions", protect(routes.Sessions))
	}
	if routes.Leaderboard != nil {
		mux.Handle("GET /v1/leaderboards/{window}", protect(routes.Leaderboard))
	}

	var handler http.Handler = mux
	handler = CORS(cfg.CORS)(handler)
	handler = logging.Middleware(logger)(handler)

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func pingDependencies(ctx context.Context, pingers map[string]Pinger) (string, error) {
	for name, ping := range pingers {
		if err := ping(ctx); err != nil {
			return name, err
		}
	}
	return "", nil
}

// CORS builds the rs/cors middleware from the CORS config group. The same
// origin list drives NewWSUpgrader.
func CORS(cfg config.CORS) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins = append(origins, strings.TrimSpace(o))
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   []string{logging.RequestIDHeader, "Idempotent-Replayed"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
	return c.Handler
}
