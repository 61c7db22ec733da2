// Package registry implements the ledger-side assessment registry: question
// sets, per-user assessments, oracle configuration, and the verification
// request dispatch protocol. All state-changing entry points are serialized,
// mirroring a ledger's global transaction ordering, and each successful
// transaction advances the block height.
package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quizchain/quizchain/internal/models"
)

// Journal receives state transitions for durable storage. Journal failures
// are logged, never propagated: the in-memory ledger state stays
// authoritative within a session.
type Journal interface {
	RecordQuestionSet(qs *models.QuestionSet) error
	RecordAssessment(a *models.Assessment) error
	RecordRequest(r *models.VerificationRequest) error
	RecordConfig(cfg *models.OracleConfig) error
}

// Job is the payload handed to the oracle network on dispatch. Only
// content-addressed identifiers cross this boundary; raw question and answer
// text stays in the content store.
type Job struct {
	RequestID     string
	QuestionSetID string
	AnswersHash   models.Hash32
	ContentHash   models.Hash32
}

// OracleNetwork accepts verification jobs for asynchronous evaluation.
type OracleNetwork interface {
	Send(job Job) error
}

// sinkNetwork swallows jobs; snapshots simulate dispatch against it so a
// preflight never reaches the real oracle network.
type sinkNetwork struct{}

func (sinkNetwork) Send(Job) error { return nil }

// Gas metering: flat base cost plus a per-record write cost. Only relative
// magnitudes matter to callers.
const (
	gasBase     uint64 = 21_000
	gasWrite    uint64 = 5_000
	gasDispatch uint64 = 9_000
)

type assessKey struct {
	user models.Address
	qs   string
}

// Registry is the authoritative assessment ledger state.
type Registry struct {
	mu sync.Mutex

	addr  models.Address // the registry's own contract address
	admin models.Address

	height       uint64
	questionSets map[string]*models.QuestionSet
	order        []string // question set ids in creation order
	assessments  map[assessKey]*models.Assessment
	requests     map[string]*models.VerificationRequest
	outstanding  map[assessKey]string
	config       *models.OracleConfig
	deployed     map[models.Address]bool

	network OracleNetwork
	journal Journal
	log     *zap.Logger
	now     func() time.Time
	newID   func() string
}

// Params configures a new Registry.
type Params struct {
	Address models.Address
	Admin   models.Address
	Network OracleNetwork
	Journal Journal
	Logger  *zap.Logger
}

func New(p Params) *Registry {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		addr:         models.NormalizeAddress(string(p.Address)),
		admin:        models.NormalizeAddress(string(p.Admin)),
		questionSets: map[string]*models.QuestionSet{},
		assessments:  map[assessKey]*models.Assessment{},
		requests:     map[string]*models.VerificationRequest{},
		outstanding:  map[assessKey]string{},
		config:       &models.OracleConfig{AuthorizedCallers: map[models.Address]bool{}, Enabled: true},
		deployed:     map[models.Address]bool{},
		network:      p.Network,
		journal:      p.Journal,
		log:          log.Named("registry"),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	if !r.addr.IsZero() {
		r.deployed[r.addr] = true
	}
	return r
}

// SetNetwork wires the oracle network after construction; the network needs
// the registry as its resolver, so the two are built in sequence at boot.
func (r *Registry) SetNetwork(n OracleNetwork) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.network = n
}

// State is a restorable dump of ledger state, used at boot and after a
// desync-forced reload.
type State struct {
	Height       uint64
	QuestionSets []*models.QuestionSet
	Assessments  []*models.Assessment
	Requests     []*models.VerificationRequest
	Config       *models.OracleConfig
}

// Restore replaces all registry state. Outstanding request ids are rebuilt
// from the unresolved requests of verifying assessments.
func (r *Registry) Restore(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.height = st.Height
	r.questionSets = map[string]*models.QuestionSet{}
	r.order = r.order[:0]
	for _, qs := range st.QuestionSets {
		cp := *qs
		r.questionSets[qs.ID] = &cp
		r.order = append(r.order, qs.ID)
	}
	r.assessments = map[assessKey]*models.Assessment{}
	for _, a := range st.Assessments {
		cp := *a
		r.assessments[assessKey{a.User, a.QuestionSetID}] = &cp
	}
	r.requests = map[string]*models.VerificationRequest{}
	r.outstanding = map[assessKey]string{}
	for _, req := range st.Requests {
		cp := *req
		r.requests[req.ID] = &cp
		if !cp.Resolved() {
			k := assessKey{cp.User, cp.QuestionSetID}
			if a, ok := r.assessments[k]; ok && a.Status == models.StatusVerifying {
				r.outstanding[k] = cp.ID
			}
		}
	}
	if st.Config != nil {
		r.config = st.Config.Clone()
	}
}

// --- read-only accessors -------------------------------------------------

// Height returns the current block height.
func (r *Registry) Height() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.height
}

func (r *Registry) Address() models.Address { return r.addr }
func (r *Registry) Admin() models.Address   { return r.admin }

// QuestionSet returns a copy of the question set, if it exists.
func (r *Registry) QuestionSet(id string) (models.QuestionSet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	qs, ok := r.questionSets[id]
	if !ok {
		return models.QuestionSet{}, false
	}
	return *qs, true
}

// QuestionSetCount returns the number of question sets ever created.
func (r *Registry) QuestionSetCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// ActiveQuestionSets lists active question set ids in creation order. This
// is the explicit enumeration accessor; there is no probe-until-error path.
func (r *Registry) ActiveQuestionSets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if qs := r.questionSets[id]; qs != nil && qs.Active {
			out = append(out, id)
		}
	}
	return out
}

// UserAssessment returns a copy of the user's assessment for a question set.
// A missing record reads as a zero assessment in not_started.
func (r *Registry) UserAssessment(user models.Address, questionSetID string) models.Assessment {
	r.mu.Lock()
	defer r.mu.Unlock()
	user = models.NormalizeAddress(string(user))
	if a, ok := r.assessments[assessKey{user, questionSetID}]; ok {
		return *a
	}
	return models.Assessment{User: user, QuestionSetID: questionSetID, Status: models.StatusNotStarted}
}

// Request returns a copy of a verification request by id.
func (r *Registry) Request(id string) (models.VerificationRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return models.VerificationRequest{}, false
	}
	return *req, true
}

// OutstandingRequest returns the unresolved request for an assessment.
func (r *Registry) OutstandingRequest(user models.Address, questionSetID string) (models.VerificationRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user = models.NormalizeAddress(string(user))
	id, ok := r.outstanding[assessKey{user, questionSetID}]
	if !ok {
		return models.VerificationRequest{}, false
	}
	req, ok := r.requests[id]
	if !ok {
		return models.VerificationRequest{}, false
	}
	return *req, true
}

// OracleConfigSnapshot returns a deep copy of the current oracle config.
func (r *Registry) OracleConfigSnapshot() *models.OracleConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.Clone()
}

// UseOracle reports whether submissions dispatch to the oracle network.
func (r *Registry) UseOracle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.Enabled
}

func (r *Registry) SubscriptionID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.SubscriptionID
}

func (r *Registry) NetworkID() models.Hash32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.NetworkID
}

func (r *Registry) EvaluationScript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.EvaluationScript
}

func (r *Registry) OracleAddress() models.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.OracleAddress
}

func (r *Registry) IsAuthorizedCaller(addr models.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.AuthorizedCallers[models.NormalizeAddress(string(addr))]
}

// HasCode reports whether addr is a deployed, code-bearing endpoint. This is
// the existence probe behind the oracle_endpoint configuration check.
func (r *Registry) HasCode(addr models.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deployed[models.NormalizeAddress(string(addr))]
}

// --- administration ------------------------------------------------------

func (r *Registry) requireAdmin(caller models.Address) error {
	if models.NormalizeAddress(string(caller)) != r.admin {
		return ErrNotAdmin
	}
	return nil
}

// CreateQuestionSet publishes a new question set. The id is caller-chosen
// and must be unique; an empty id gets a generated one. ContentHash is
// immutable once set.
func (r *Registry) CreateQuestionSet(caller models.Address, id string, contentHash models.Hash32, questionCount int) (models.QuestionSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireAdmin(caller); err != nil {
		return models.QuestionSet{}, err
	}
	if id == "" {
		id = r.newID()[:8]
	}
	if _, exists := r.questionSets[id]; exists {
		return models.QuestionSet{}, ErrDuplicateID
	}
	qs := &models.QuestionSet{
		ID:            id,
		ContentHash:   contentHash,
		QuestionCount: questionCount,
		CreatedAt:     r.now(),
		Active:        true,
	}
	r.questionSets[id] = qs
	r.order = append(r.order, id)
	r.commit(gasBase + gasWrite)
	r.journalQuestionSet(qs)
	return *qs, nil
}

// SetQuestionSetActive toggles the only mutable field of a question set.
func (r *Registry) SetQuestionSetActive(caller models.Address, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.setQuestionSetActive(caller, id, active)
	return err
}

func (r *Registry) setQuestionSetActive(caller models.Address, id string, active bool) (uint64, error) {
	if err := r.requireAdmin(caller); err != nil {
		return 0, err
	}
	qs, ok := r.questionSets[id]
	if !ok {
		return 0, ErrQuestionSetNotFound
	}
	qs.Active = active
	gas := gasBase + gasWrite
	r.commit(gas)
	r.journalQuestionSet(qs)
	return gas, nil
}

// SetOracleConfig replaces the oracle configuration, preserving the bypass
// flag which is owned by the bypass controller.
func (r *Registry) SetOracleConfig(caller models.Address, cfg *models.OracleConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	next := cfg.Clone()
	if next.AuthorizedCallers == nil {
		next.AuthorizedCallers = map[models.Address]bool{}
	}
	next.Enabled = r.config.Enabled
	r.config = next
	r.commit(gasBase + gasWrite)
	r.journalConfig()
	return nil
}

// AuthorizeCaller adds or removes one address from the authorized caller set.
func (r *Registry) AuthorizeCaller(caller, target models.Address, ok bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	target = models.NormalizeAddress(string(target))
	if ok {
		r.config.AuthorizedCallers[target] = true
	} else {
		delete(r.config.AuthorizedCallers, target)
	}
	r.commit(gasBase + gasWrite)
	r.journalConfig()
	return nil
}

// RegisterEndpoint marks an address as a deployed, code-bearing contract.
func (r *Registry) RegisterEndpoint(caller, addr models.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	r.deployed[models.NormalizeAddress(string(addr))] = true
	r.commit(gasBase + gasWrite)
	return nil
}

// SetUseOracle toggles oracle dispatch. When disabled, submissions grade
// synchronously with the placeholder score.
func (r *Registry) SetUseOracle(caller models.Address, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.setUseOracle(caller, enabled)
	return err
}

func (r *Registry) setUseOracle(caller models.Address, enabled bool) (uint64, error) {
	if err := r.requireAdmin(caller); err != nil {
		return 0, err
	}
	r.config.Enabled = enabled
	gas := gasBase + gasWrite
	r.commit(gas)
	r.journalConfig()
	return gas, nil
}

// --- transaction plumbing ------------------------------------------------

// commit advances the block height after a successful state-changing call.
// Callers hold r.mu.
func (r *Registry) commit(gas uint64) {
	r.height++
	_ = gas
}

func (r *Registry) journalQuestionSet(qs *models.QuestionSet) {
	if r.journal == nil {
		return
	}
	cp := *qs
	if err := r.journal.RecordQuestionSet(&cp); err != nil {
		r.log.Warn("journal question set", zap.String("id", qs.ID), zap.Error(err))
	}
}

func (r *Registry) journalAssessment(a *models.Assessment) {
	if r.journal == nil {
		return
	}
	cp := *a
	if err := r.journal.RecordAssessment(&cp); err != nil {
		r.log.Warn("journal assessment", zap.String("user", string(a.User)), zap.Error(err))
	}
}

func (r *Registry) journalRequest(req *models.VerificationRequest) {
	if r.journal == nil {
		return
	}
	cp := *req
	if err := r.journal.RecordRequest(&cp); err != nil {
		r.log.Warn("journal request", zap.String("id", req.ID), zap.Error(err))
	}
}

func (r *Registry) journalConfig() {
	if r.journal == nil {
		return
	}
	if err := r.journal.RecordConfig(r.config.Clone()); err != nil {
		r.log.Warn("journal config", zap.Error(err))
	}
}

// snapshot deep-copies the registry for simulation. The copy journals
// nowhere, logs nowhere, and dispatches to a sink network.
func (r *Registry) snapshot() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := &Registry{
		addr:         r.addr,
		admin:        r.admin,
		height:       r.height,
		questionSets: make(map[string]*models.QuestionSet, len(r.questionSets)),
		order:        append([]string(nil), r.order...),
		assessments:  make(map[assessKey]*models.Assessment, len(r.assessments)),
		requests:     make(map[string]*models.VerificationRequest, len(r.requests)),
		outstanding:  make(map[assessKey]string, len(r.outstanding)),
		config:       r.config.Clone(),
		deployed:     make(map[models.Address]bool, len(r.deployed)),
		network:      sinkNetwork{},
		log:          zap.NewNop(),
		now:          r.now,
		newID:        r.newID,
	}
	for id, qs := range r.questionSets {
		c := *qs
		cp.questionSets[id] = &c
	}
	for k, a := range r.assessments {
		c := *a
		cp.assessments[k] = &c
	}
	for id, req := range r.requests {
		c := *req
		cp.requests[id] = &c
	}
	for k, id := range r.outstanding {
		cp.outstanding[k] = id
	}
	for a, ok := range r.deployed {
		cp.deployed[a] = ok
	}
	return cp
}

// Apply executes a ledger call for real. Unknown methods revert.
func (r *Registry) Apply(call models.Call) (uint64, error) {
	switch call.Method {
	case models.CallSubmitAnswers:
		return r.submitAnswers(call.Caller, call.QuestionSetID, call.AnswersHash)
	case models.CallRestart:
		user := call.User
		if user.IsZero() {
			user = call.Caller
		}
		return r.restart(call.Caller, user, call.QuestionSetID)
	case models.CallSetActive:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.setQuestionSetActive(call.Caller, call.QuestionSetID, call.Active)
	case models.CallSetUseOracle:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.setUseOracle(call.Caller, call.Enabled)
	default:
		return 0, &RevertError{Code: "unknown_method", Reason: "unknown ledger method " + call.Method}
	}
}

// SimulateCall runs a call against a snapshot without committing. It backs
// the preflight gas estimation guard; a success here is advisory only.
func (r *Registry) SimulateCall(call models.Call) (uint64, error) {
	return r.snapshot().Apply(call)
}
