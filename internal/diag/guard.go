package diag

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/quizchain/quizchain/internal/models"
)

// Simulator executes a ledger call against a snapshot of current state
// without committing. The registry implements this by deep-copying its state
// and applying the call to the copy.
type Simulator interface {
	SimulateCall(call models.Call) (gas uint64, err error)
}

// Reverter is a structured revert: any error exposing a stable code plus a
// human-readable reason. The registry's revert errors implement it.
type Reverter interface {
	error
	RevertCode() string
	RevertReason() string
}

// PreflightResult is the advisory outcome of a simulation. A successful
// simulation does not guarantee the later real call succeeds; state may
// change between simulate and commit.
type PreflightResult struct {
	OK           bool    `json:"ok"`
	GasEstimate  uint64  `json:"gas_estimate,omitempty"`
	RevertCode   string  `json:"revert_code,omitempty"`
	RevertReason string  `json:"revert_reason,omitempty"`
	FailedChecks []Check `json:"failed_checks,omitempty"`
	RawError     string  `json:"raw_error,omitempty"`
}

// Guard runs preflight simulations and turns revert errors into structured,
// actionable results. Substring classification is the last resort for
// transports that only give back unstructured text.
type Guard struct {
	sim Simulator
	log *zap.Logger
}

func NewGuard(sim Simulator, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{sim: sim, log: log}
}

// Simulate runs call against current state without committing. Running it
// twice with no intervening state change yields identical results.
func (g *Guard) Simulate(call models.Call) PreflightResult {
	gas, err := g.sim.SimulateCall(call)
	if err == nil {
		return PreflightResult{OK: true, GasEstimate: gas}
	}
	res := DecodeRevert(err)
	g.log.Debug("preflight revert",
		zap.String("method", call.Method),
		zap.String("code", res.RevertCode),
		zap.String("reason", res.RevertReason))
	return res
}

// DecodeRevert classifies a failed call into a PreflightResult. Structured
// decode is attempted first; the raw error is always preserved so nothing is
// swallowed when decoding fails.
func DecodeRevert(err error) PreflightResult {
	res := PreflightResult{RawError: err.Error()}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		res.RevertCode = "config_invalid"
		res.RevertReason = cfgErr.Report.Summary()
		res.FailedChecks = cfgErr.Report.Failed
		return res
	}

	var rev Reverter
	if errors.As(err, &rev) {
		res.RevertCode = rev.RevertCode()
		res.RevertReason = rev.RevertReason()
		return res
	}

	// Unstructured transport: substring-match known reason strings.
	if code := classifyReason(err.Error()); code != "" {
		res.RevertCode = code
		res.RevertReason = err.Error()
		return res
	}

	res.RevertCode = "unknown"
	res.RevertReason = err.Error()
	return res
}

// knownReasons maps revert-reason fragments to stable codes, mirroring the
// reason strings the registry emits.
var knownReasons = []struct {
	fragment string
	code     string
}{
	{"not active", "question_set_inactive"},
	{"does not exist", "question_set_not_found"},
	{"awaiting verification", "already_verifying"},
	{"already completed", "already_completed"},
	{"unresolved verification request", "request_outstanding"},
	{"not authorized", "not_authorized"},
	{"not the administrator", "not_admin"},
	{"configuration invalid", "config_invalid"},
	{"oracle network rejected", "dispatch_failed"},
}

func classifyReason(msg string) string {
	lower := strings.ToLower(msg)
	for _, k := range knownReasons {
		if strings.Contains(lower, k.fragment) {
			return k.code
		}
	}
	return ""
}
