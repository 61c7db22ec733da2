// Package api exposes the HTTP surface: question set publication, answer
// submission, assessment queries, and the administrative diagnosis and
// recovery endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/quizchain/quizchain/internal/diag"
	"github.com/quizchain/quizchain/internal/middleware"
	"github.com/quizchain/quizchain/internal/models"
	"github.com/quizchain/quizchain/internal/oracle"
	"github.com/quizchain/quizchain/internal/registry"
	"github.com/quizchain/quizchain/internal/services"
)

type Router struct {
	reg     *registry.Registry
	bypass  *registry.BypassController
	guard   *diag.Guard
	monitor *diag.DesyncMonitor
	content oracle.ContentStore
	auth    *services.AuthService
	log     *zap.Logger

	// verifyTimeout marks how long an assessment may sit in verifying
	// before diagnostics flag it as stuck and restart-eligible.
	verifyTimeout time.Duration

	// reloadState rebuilds registry state after a detected desync.
	reloadState func() error

	now func() time.Time
}

type Params struct {
	Registry      *registry.Registry
	Bypass        *registry.BypassController
	Guard         *diag.Guard
	Monitor       *diag.DesyncMonitor
	Content       oracle.ContentStore
	Auth          *services.AuthService
	Logger        *zap.Logger
	VerifyTimeout time.Duration
	ReloadState   func() error
}

func NewRouter(p Params) *Router {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if p.VerifyTimeout <= 0 {
		p.VerifyTimeout = 10 * time.Minute
	}
	return &Router{
		reg:           p.Registry,
		bypass:        p.Bypass,
		guard:         p.Guard,
		monitor:       p.Monitor,
		content:       p.Content,
		auth:          p.Auth,
		log:           log.Named("api"),
		verifyTimeout: p.VerifyTimeout,
		reloadState:   p.ReloadState,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", rt.handleRegister)    // POST
	mux.HandleFunc("/api/auth/login", rt.handleLogin)          // POST
	mux.HandleFunc("/api/question-sets", rt.handleQuestionSets) // GET, POST
	mux.HandleFunc("/api/question-sets/", rt.handleQuestionSetScoped)
	mux.HandleFunc("/api/submit", rt.handleSubmit)             // POST
	mux.HandleFunc("/api/assessment", rt.handleAssessment)     // GET
	mux.HandleFunc("/api/admin/validate", middleware.RequireAuth(rt.handleValidate))
	mux.HandleFunc("/api/admin/preflight", middleware.RequireAuth(rt.handlePreflight))
	mux.HandleFunc("/api/admin/bypass", middleware.RequireAuth(rt.handleBypass))
	mux.HandleFunc("/api/admin/restart", middleware.RequireAuth(rt.handleRestart))
	mux.HandleFunc("/api/admin/oracle-config", middleware.RequireAuth(rt.handleOracleConfig))
	mux.HandleFunc("/api/admin/caps", middleware.RequireAuth(rt.handleCaps))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errBody struct {
	Error        string       `json:"error"`
	Code         string       `json:"code,omitempty"`
	State        string       `json:"state,omitempty"`
	FailedChecks []diag.Check `json:"failed_checks,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses with the structured
// detail the client needs to act: current state for state errors, the full
// failed-check list for configuration errors.
func (rt *Router) writeError(w http.ResponseWriter, err error, state models.AssessmentStatus) {
	var cfgErr *diag.ConfigError
	if errors.As(err, &cfgErr) {
		writeJSON(w, http.StatusConflict, errBody{
			Error:        cfgErr.Error(),
			Code:         "config_invalid",
			FailedChecks: cfgErr.Report.Failed,
		})
		return
	}
	var rev *registry.RevertError
	if errors.As(err, &rev) {
		status := http.StatusConflict
		switch rev.Code {
		case "question_set_not_found":
			status = http.StatusNotFound
		case "not_authorized", "not_admin":
			status = http.StatusForbidden
		}
		writeJSON(w, status, errBody{Error: rev.Reason, Code: rev.Code, State: state.String()})
		return
	}
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusBadRequest
		switch se.Code {
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorConflict:
			status = http.StatusConflict
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorForbidden:
			status = http.StatusForbidden
		}
		writeJSON(w, status, errBody{Error: se.Message, Code: string(se.Code)})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errBody{Error: err.Error()})
}

// observeHeight feeds the desync monitor. On a detected reset all local
// assumptions are invalid: reload everything, never retry partially.
func (rt *Router) observeHeight(w http.ResponseWriter) bool {
	if rt.monitor == nil {
		return true
	}
	if err := rt.monitor.Observe(rt.reg.Height()); err != nil {
		rt.log.Error("chain desync, forcing state reload", zap.Error(err))
		if rt.reloadState != nil {
			if rerr := rt.reloadState(); rerr != nil {
				rt.log.Error("state reload failed", zap.Error(rerr))
			}
		}
		rt.monitor.Reset()
		writeJSON(w, http.StatusServiceUnavailable, errBody{Error: err.Error(), Code: "network_desync"})
		return false
	}
	return true
}
