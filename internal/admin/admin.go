// Package admin implements C10: a local-only REST control surface exposing
// health, status, reload, and non-secret config metadata (spec §4.10,
// §6.2). The transport is filesystem-permission-gated (a unix socket or a
// loopback listener bound by the caller), so no authentication layer is
// needed here.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raw-labs/mxcp/internal/logger"
	"github.com/raw-labs/mxcp/internal/mxerrors"
	"github.com/raw-labs/mxcp/internal/registry"
	"github.com/raw-labs/mxcp/internal/reload"
)

// Version is set at build time (e.g. via -ldflags) and surfaced by /status.
var Version = "dev"

// Mode names whether the server was started read-only or read-write (spec
// §4.10 "/status": "mode ∈ {readonly, readwrite}").
type Mode string

const (
	ModeReadOnly  Mode = "readonly"
	ModeReadWrite Mode = "readwrite"
)

// Server holds the collaborators the admin routes report on or act
// through: the registry (for endpoint counts), the reload controller (for
// status and triggering), and static identity facts resolved at startup.
type Server struct {
	Registry  *registry.Registry
	Reload    *reload.Controller
	Profile   string
	ProjectName string
	Mode      Mode
	StartedAt time.Time
	Features  map[string]bool
}

// Router builds the chi sub-router mounted at the admin listener's root,
// one handler per concern so each route's error mapping stays independent.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", errorHandler(s.getHealth))
	r.Get("/status", errorHandler(s.getStatus))
	r.Post("/reload", errorHandler(s.postReload))
	r.Get("/config", errorHandler(s.getConfig))
	return r
}

type errResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
}

// handlerWithError lets route handlers return an error instead of writing
// one directly; this wrapper maps it to the §7 HTTP status via
// mxerrors.Code (spec §4.10 "Errors carry {error_code, message, detail?}").
type handlerWithError func(w http.ResponseWriter, r *http.Request) error

func errorHandler(fn handlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			code := mxerrors.Code(err)
			if code >= http.StatusInternalServerError {
				logger.Errorf("admin: internal error: %v", err)
			}
			writeJSON(w, code, errResponse{
				ErrorCode: string(mxerrors.KindOf(err)),
				Message:   err.Error(),
			})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

//	 getHealth
//		@Summary		Health check
//		@Description	Report whether the server process is responsive
//		@Tags			system
//		@Success		200	{object}	map[string]any
//		@Router			/health [get]
func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
	return nil
}

//	 getStatus
//		@Summary		Server status
//		@Description	Report version, uptime, mode, endpoint counts, and reload state
//		@Tags			system
//		@Success		200	{object}	map[string]any
//		@Router			/status [get]
func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) error {
	snap := s.Registry.Current()
	tools, resources, prompts := snap.Counts()
	rs := s.Reload.Status()

	writeJSON(w, http.StatusOK, map[string]any{
		"version":  Version,
		"uptime":   time.Since(s.StartedAt).String(),
		"pid":      os.Getpid(),
		"profile":  s.Profile,
		"mode":     s.Mode,
		"endpoints": map[string]int{
			"tools":     tools,
			"resources": resources,
			"prompts":   prompts,
		},
		"reload": map[string]any{
			"in_progress":       rs.InProgress,
			"draining":          rs.Draining,
			"active_requests":   rs.ActiveRequests,
			"last_reload_at":    rs.LastReloadAt,
			"last_reload_status": lastReloadStatus(rs),
			"last_reload_error": rs.LastReloadError,
		},
	})
	return nil
}

func lastReloadStatus(rs reload.Status) string {
	if rs.LastReloadAt.IsZero() {
		return "never"
	}
	if rs.LastReloadOK {
		return "success"
	}
	return "error"
}

// reloadCounter hands each POST /reload call a reload_request_id. A
// monotonic in-process counter is enough since these ids only need to be
// unique within one server run, not across restarts.
var reloadCounter int64

//	 postReload
//		@Summary		Trigger a reload
//		@Description	Queue a drain-wait-swap reload and return immediately
//		@Tags			system
//		@Success		200	{object}	map[string]any
//		@Router			/reload [post]
//
// postReload implements POST /reload (spec §4.10): queues a reload and
// returns immediately with {status:"reload_initiated", reload_request_id}.
// The actual drain/swap runs on its own goroutine so the HTTP handler
// doesn't block on the (potentially 60s) drain timeout.
func (s *Server) postReload(w http.ResponseWriter, _ *http.Request) error {
	id := atomic.AddInt64(&reloadCounter, 1)
	go func() {
		// A detached context: net/http cancels r.Context() as soon as this
		// handler returns, before the drain/swap below has a chance to run.
		if err := s.Reload.Trigger(context.Background()); err != nil {
			logger.Warnf("admin: reload %d failed: %v", id, err)
		}
	}()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "reload_initiated",
		"reload_request_id": id,
	})
	return nil
}

//	 getConfig
//		@Summary		Config metadata
//		@Description	Report project/profile/endpoint-count metadata, never secret material
//		@Tags			system
//		@Success		200	{object}	map[string]any
//		@Router			/config [get]
//
// getConfig implements GET /config (spec §4.10): "metadata only...never
// secret material".
func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) error {
	snap := s.Registry.Current()
	tools, resources, prompts := snap.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"project": s.ProjectName,
		"profile": s.Profile,
		"endpoints": map[string]int{
			"tools":     tools,
			"resources": resources,
			"prompts":   prompts,
		},
		"features": s.Features,
	})
	return nil
}
