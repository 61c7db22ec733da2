package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/quizchain/quizchain/internal/middleware"
	"github.com/quizchain/quizchain/internal/models"
	"github.com/quizchain/quizchain/internal/oracle"
	"github.com/quizchain/quizchain/internal/services"
)

// POST /api/auth/register with {email, password}. The first registration
// bootstraps the operator account; after that, new accounts can only be
// created by an authenticated operator. Without the gate any caller could
// mint a token and reach the admin surface.
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	booted, err := rt.auth.Bootstrapped()
	if err != nil {
		rt.writeError(w, err, models.StatusNotStarted)
		return
	}
	if booted && middleware.ClaimsFromContext(r.Context()) == nil {
		rt.writeError(w, services.NewForbiddenError("registration requires an operator token"), models.StatusNotStarted)
		return
	}
	res, err := rt.auth.Register(req.Email, req.Password)
	if err != nil {
		rt.writeError(w, err, models.StatusNotStarted)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "user_id": res.UserID})
}

// POST /api/auth/login with {email, password}.
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		rt.writeError(w, err, models.StatusNotStarted)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": res.Token, "user_id": res.UserID})
}

// GET /api/question-sets lists active sets; POST publishes a new one (admin).
func (rt *Router) handleQuestionSets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ids := rt.reg.ActiveQuestionSets()
		out := make([]models.QuestionSet, 0, len(ids))
		for _, id := range ids {
			if qs, ok := rt.reg.QuestionSet(id); ok {
				out = append(out, qs)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"question_sets": out, "count": rt.reg.QuestionSetCount()})
	case http.MethodPost:
		rt.handleCreateQuestionSet(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) handleCreateQuestionSet(w http.ResponseWriter, r *http.Request) {
	claims := claimsOrReject(w, r)
	if claims == nil {
		return
	}
	var req struct {
		ID        string            `json:"id"`
		Questions []oracle.Question `json:"questions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Questions) == 0 {
		http.Error(w, "questions required", http.StatusBadRequest)
		return
	}
	raw, err := oracle.EncodeContent(&oracle.QuestionPayload{Questions: req.Questions})
	if err != nil {
		rt.writeError(w, err, models.StatusNotStarted)
		return
	}
	hash, err := rt.content.Put(r.Context(), raw)
	if err != nil {
		rt.writeError(w, err, models.StatusNotStarted)
		return
	}
	qs, err := rt.reg.CreateQuestionSet(rt.reg.Admin(), req.ID, hash, len(req.Questions))
	if err != nil {
		rt.writeError(w, err, models.StatusNotStarted)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

// POST /api/question-sets/{id}/active with {active} (admin).
func (rt *Router) handleQuestionSetScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/question-sets/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "active" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if claimsOrReject(w, r) == nil {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rt.reg.SetQuestionSetActive(rt.reg.Admin(), parts[0], req.Active); err != nil {
		rt.writeError(w, err, models.StatusNotStarted)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /api/submit with {user, question_set_id, answers: [..]}.
// The raw answers go to the content store; only their hash reaches the
// ledger.
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !rt.observeHeight(w) {
		return
	}
	var req struct {
		User          string   `json:"user"`
		QuestionSetID string   `json:"question_set_id"`
		Answers       []string `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user := models.NormalizeAddress(req.User)
	if user.IsZero() || req.QuestionSetID == "" {
		http.Error(w, "user and question_set_id required", http.StatusBadRequest)
		return
	}
	raw, err := oracle.EncodeContent(&oracle.AnswerPayload{Answers: req.Answers})
	if err != nil {
		rt.writeError(w, err, models.StatusNotStarted)
		return
	}
	answersHash, err := rt.content.Put(r.Context(), raw)
	if err != nil {
		rt.writeError(w, err, models.StatusNotStarted)
		return
	}
	a, err := rt.reg.SubmitAnswers(user, req.QuestionSetID, answersHash)
	if err != nil {
		prior := rt.reg.UserAssessment(user, req.QuestionSetID)
		rt.writeError(w, err, prior.Status)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GET /api/assessment?user=...&question_set_id=...
func (rt *Router) handleAssessment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !rt.observeHeight(w) {
		return
	}
	user := models.NormalizeAddress(r.URL.Query().Get("user"))
	qsID := r.URL.Query().Get("question_set_id")
	if user.IsZero() || qsID == "" {
		http.Error(w, "user and question_set_id required", http.StatusBadRequest)
		return
	}
	a := rt.reg.UserAssessment(user, qsID)
	out := map[string]any{"assessment": a}
	if req, ok := rt.reg.OutstandingRequest(user, qsID); ok {
		out["outstanding_request"] = req
		// Stuck verification is surfaced, never auto-restarted; restart
		// stays an explicit action.
		if rt.now().Sub(req.SubmittedAt) > rt.verifyTimeout {
			out["restart_eligible"] = true
		}
	}
	writeJSON(w, http.StatusOK, out)
}
