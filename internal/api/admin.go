package api

import (
	"encoding/json"
	"net/http"

	"github.com/quizchain/quizchain/internal/diag"
	"github.com/quizchain/quizchain/internal/middleware"
	"github.com/quizchain/quizchain/internal/models"
)

func claimsOrReject(w http.ResponseWriter, r *http.Request) *middleware.Claims {
	c := middleware.ClaimsFromContext(r.Context())
	if c == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return c
}

// GET /api/admin/validate runs every configuration check and reports all
// failures, plus the current height and bypass flag.
func (rt *Router) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !rt.observeHeight(w) {
		return
	}
	cfg := rt.reg.OracleConfigSnapshot()
	rep := diag.ValidateConfig(cfg, rt.reg.Address(), rt.reg)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             rep.OK(),
		"failed_checks":  rep.Failed,
		"summary":        rep.Summary(),
		"oracle_enabled": cfg.Enabled,
		"height":         rt.reg.Height(),
	})
}

// POST /api/admin/preflight simulates a ledger call and returns the decoded
// revert reason, if any. Purely advisory.
func (rt *Router) handlePreflight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var call models.Call
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, rt.guard.Simulate(call))
}

// POST /api/admin/bypass with {enabled}.
func (rt *Router) handleBypass(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var err error
	if req.Enabled {
		err = rt.bypass.EnableOracle()
	} else {
		err = rt.bypass.DisableOracle()
	}
	if err != nil {
		rt.writeError(w, err, models.StatusNotStarted)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"oracle_enabled": rt.bypass.OracleEnabled()})
}

// POST /api/admin/restart with {user, question_set_id}.
func (rt *Router) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		User          string `json:"user"`
		QuestionSetID string `json:"question_set_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user := models.NormalizeAddress(req.User)
	if err := rt.reg.Restart(rt.reg.Admin(), user, req.QuestionSetID); err != nil {
		rt.writeError(w, err, rt.reg.UserAssessment(user, req.QuestionSetID).Status)
		return
	}
	writeJSON(w, http.StatusOK, rt.reg.UserAssessment(user, req.QuestionSetID))
}

// POST /api/admin/oracle-config replaces the oracle configuration.
func (rt *Router) handleOracleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, rt.reg.OracleConfigSnapshot())
	case http.MethodPost:
		var req struct {
			NetworkID         string   `json:"network_id"`
			SubscriptionID    uint64   `json:"subscription_id"`
			OracleAddress     string   `json:"oracle_address"`
			EvaluationScript  string   `json:"evaluation_script"`
			AuthorizedCallers []string `json:"authorized_callers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cfg := &models.OracleConfig{
			SubscriptionID:    req.SubscriptionID,
			OracleAddress:     models.NormalizeAddress(req.OracleAddress),
			EvaluationScript:  req.EvaluationScript,
			AuthorizedCallers: map[models.Address]bool{},
		}
		if req.NetworkID != "" {
			h, err := models.ParseHash32(req.NetworkID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			cfg.NetworkID = h
		}
		for _, c := range req.AuthorizedCallers {
			cfg.AuthorizedCallers[models.NormalizeAddress(c)] = true
		}
		if err := rt.reg.SetOracleConfig(rt.reg.Admin(), cfg); err != nil {
			rt.writeError(w, err, models.StatusNotStarted)
			return
		}
		writeJSON(w, http.StatusOK, rt.reg.OracleConfigSnapshot())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/admin/caps returns the static capability manifest.
func (rt *Router) handleCaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": diag.Manifest()})
}
