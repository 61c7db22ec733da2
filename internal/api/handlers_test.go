package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizchain/quizchain/internal/diag"
	"github.com/quizchain/quizchain/internal/middleware"
	"github.com/quizchain/quizchain/internal/models"
	"github.com/quizchain/quizchain/internal/oracle"
	"github.com/quizchain/quizchain/internal/registry"
	"github.com/quizchain/quizchain/internal/services"
)

const (
	apiRegistryAddr = models.Address("0x00000000000000000000000000000000000000aa")
	apiAdminAddr    = models.Address("0x00000000000000000000000000000000000000ad")
	apiOracleAddr   = models.Address("0x00000000000000000000000000000000000000e1")
	apiUser         = "0x0000000000000000000000000000000000000101"
)

type apiStubNetwork struct {
	jobs []registry.Job
}

func (n *apiStubNetwork) Send(job registry.Job) error {
	n.jobs = append(n.jobs, job)
	return nil
}

type apiAuthStore struct {
	users map[string]*services.User
}

func (s *apiAuthStore) FindUserByEmail(email string) (*services.User, error) {
	if u, ok := s.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *apiAuthStore) AddUser(u *services.User) error {
	cp := *u
	s.users[u.Email] = &cp
	return nil
}

func (s *apiAuthStore) CountUsers() (int, error) {
	return len(s.users), nil
}

type apiFixture struct {
	reg      *registry.Registry
	net      *apiStubNetwork
	monitor  *diag.DesyncMonitor
	router   *Router
	handler  http.Handler
	token    string
	reloaded int
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{net: &apiStubNetwork{}}
	f.reg = registry.New(registry.Params{
		Address: apiRegistryAddr,
		Admin:   apiAdminAddr,
		Network: f.net,
	})
	require.NoError(t, f.reg.SetOracleConfig(apiAdminAddr, &models.OracleConfig{
		NetworkID:        models.Hash32{31: 1},
		SubscriptionID:   5,
		OracleAddress:    apiOracleAddr,
		EvaluationScript: "grade()",
	}))
	require.NoError(t, f.reg.AuthorizeCaller(apiAdminAddr, apiRegistryAddr, true))
	require.NoError(t, f.reg.RegisterEndpoint(apiAdminAddr, apiOracleAddr))

	auth := services.NewAuthService(&apiAuthStore{users: map[string]*services.User{}}, middleware.SignToken)
	res, err := auth.Register("op@example.com", "Secret123")
	require.NoError(t, err)
	f.token = res.Token

	f.monitor = diag.NewDesyncMonitor(1_000)
	f.router = NewRouter(Params{
		Registry: f.reg,
		Bypass:   registry.NewBypassController(f.reg, apiAdminAddr, nil),
		Guard:    diag.NewGuard(f.reg, nil),
		Monitor:  f.monitor,
		Content:  oracle.NewMemoryContentStore(),
		Auth:     auth,
		ReloadState: func() error {
			f.reloaded++
			return nil
		},
	})
	mux := http.NewServeMux()
	f.router.Register(mux)
	f.handler = middleware.WithAuth(mux)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func (f *apiFixture) publishQuestionSet(t *testing.T, id string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/question-sets", f.token, map[string]any{
		"id":        id,
		"questions": []oracle.Question{{Text: "what is a ledger", Reference: "an ordered record"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubmitAndResolveFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.publishQuestionSet(t, "qs1")

	rec := f.do(t, http.MethodGet, "/api/question-sets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)
	assert.EqualValues(t, 1, list["count"])

	rec = f.do(t, http.MethodPost, "/api/submit", "", map[string]any{
		"user":            apiUser,
		"question_set_id": "qs1",
		"answers":         []string{"an ordered record"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "verifying", body["status"])
	require.Len(t, f.net.jobs, 1)

	// Before the callback the assessment reports its outstanding request.
	rec = f.do(t, http.MethodGet, "/api/assessment?user="+apiUser+"&question_set_id=qs1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.NotNil(t, body["outstanding_request"])
	assert.Nil(t, body["restart_eligible"])

	require.True(t, f.reg.Resolve(f.net.jobs[0].RequestID, 81, models.Hash32{31: 7}))

	rec = f.do(t, http.MethodGet, "/api/assessment?user="+apiUser+"&question_set_id=qs1", "", nil)
	body = decodeBody(t, rec)
	a := body["assessment"].(map[string]any)
	assert.Equal(t, "completed", a["status"])
	assert.EqualValues(t, 81, a["score"])
	assert.Nil(t, body["outstanding_request"])
}

func TestSubmitErrorsCarryState(t *testing.T) {
	f := newAPIFixture(t)
	f.publishQuestionSet(t, "qs1")

	submit := map[string]any{"user": apiUser, "question_set_id": "qs1", "answers": []string{"x"}}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/submit", "", submit).Code)

	rec := f.do(t, http.MethodPost, "/api/submit", "", submit)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "already_verifying", body["code"])
	assert.Equal(t, "verifying", body["state"])

	rec = f.do(t, http.MethodPost, "/api/submit", "", map[string]any{
		"user": apiUser, "question_set_id": "missing", "answers": []string{"x"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitConfigInvalidListsFailedChecks(t *testing.T) {
	f := newAPIFixture(t)
	f.publishQuestionSet(t, "qs1")
	require.NoError(t, f.reg.SetOracleConfig(apiAdminAddr, &models.OracleConfig{OracleAddress: apiOracleAddr}))

	rec := f.do(t, http.MethodPost, "/api/submit", "", map[string]any{
		"user": apiUser, "question_set_id": "qs1", "answers": []string{"x"},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "config_invalid", body["code"])
	checks := body["failed_checks"].([]any)
	assert.ElementsMatch(t, []any{"subscription_id", "network_id", "evaluation_script", "caller_authorized"}, checks)
}

func TestAssessmentFlagsStuckVerification(t *testing.T) {
	f := newAPIFixture(t)
	f.publishQuestionSet(t, "qs1")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/submit", "", map[string]any{
		"user": apiUser, "question_set_id": "qs1", "answers": []string{"x"},
	}).Code)

	f.router.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	rec := f.do(t, http.MethodGet, "/api/assessment?user="+apiUser+"&question_set_id=qs1", "", nil)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["restart_eligible"])
	// Flagged only; the assessment stays verifying until someone acts.
	a := body["assessment"].(map[string]any)
	assert.Equal(t, "verifying", a["status"])
}

func TestRegisterLockedAfterBootstrap(t *testing.T) {
	f := newAPIFixture(t)

	// The fixture already bootstrapped the first operator, so anonymous
	// registration no longer hands out admin-capable tokens.
	rec := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "intruder@example.com", "password": "Sneaky123",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeBody(t, rec)["code"])

	// An existing operator can still create accounts.
	rec = f.do(t, http.MethodPost, "/api/auth/register", f.token, map[string]string{
		"email": "second-op@example.com", "password": "Secret456",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody(t, rec)["token"])
}

func TestRegisterBootstrapsFirstOperator(t *testing.T) {
	f := newAPIFixture(t)
	f.router.auth = services.NewAuthService(&apiAuthStore{users: map[string]*services.User{}}, middleware.SignToken)

	rec := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "first@example.com", "password": "Secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	rec = f.do(t, http.MethodGet, "/api/admin/validate", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	f := newAPIFixture(t)
	for _, path := range []string{
		"/api/admin/validate",
		"/api/admin/caps",
		"/api/admin/oracle-config",
	} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		rec = f.do(t, http.MethodGet, path, "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminValidateEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/admin/validate", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])

	require.NoError(t, f.reg.SetOracleConfig(apiAdminAddr, &models.OracleConfig{}))
	rec = f.do(t, http.MethodGet, "/api/admin/validate", f.token, nil)
	body = decodeBody(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Len(t, body["failed_checks"].([]any), 5)
}

func TestAdminPreflightEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.publishQuestionSet(t, "qs1")

	rec := f.do(t, http.MethodPost, "/api/admin/preflight", f.token, models.Call{
		Method:        models.CallSubmitAnswers,
		Caller:        models.Address(apiUser),
		QuestionSetID: "qs1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.NotZero(t, body["gas_estimate"])

	// Simulation is advisory and must not have dispatched anything.
	assert.Empty(t, f.net.jobs)

	rec = f.do(t, http.MethodPost, "/api/admin/preflight", f.token, models.Call{
		Method:        models.CallSubmitAnswers,
		Caller:        models.Address(apiUser),
		QuestionSetID: "missing",
	})
	body = decodeBody(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "question_set_not_found", body["revert_code"])
}

func TestAdminBypassAndRestartEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.publishQuestionSet(t, "qs1")

	rec := f.do(t, http.MethodPost, "/api/admin/bypass", f.token, map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["oracle_enabled"])

	// Bypassed submissions complete synchronously.
	rec = f.do(t, http.MethodPost, "/api/submit", "", map[string]any{
		"user": apiUser, "question_set_id": "qs1", "answers": []string{"x"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody(t, rec)["status"])
	assert.Empty(t, f.net.jobs)

	rec = f.do(t, http.MethodPost, "/api/admin/restart", f.token, map[string]any{
		"user": apiUser, "question_set_id": "qs1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not_started", decodeBody(t, rec)["status"])

	rec = f.do(t, http.MethodPost, "/api/admin/bypass", f.token, map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["oracle_enabled"])
}

func TestAdminCapsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/admin/caps", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	caps := decodeBody(t, rec)["capabilities"].([]any)
	assert.Len(t, caps, 4)
}

func TestDesyncForcesReload(t *testing.T) {
	f := newAPIFixture(t)
	f.publishQuestionSet(t, "qs1")

	// A much larger height was observed before; the registry's current height
	// reads as a regression, which is session-fatal for the request.
	require.NoError(t, f.monitor.Observe(f.reg.Height()+500))
	rec := f.do(t, http.MethodGet, "/api/assessment?user="+apiUser+"&question_set_id=qs1", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "network_desync", decodeBody(t, rec)["code"])
	assert.Equal(t, 1, f.reloaded)

	// After the reload the monitor starts fresh and requests flow again.
	rec = f.do(t, http.MethodGet, "/api/assessment?user="+apiUser+"&question_set_id=qs1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
