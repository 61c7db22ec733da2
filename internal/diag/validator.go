// Package diag holds the read-only diagnosis toolkit: oracle configuration
// validation, preflight gas simulation, chain desync detection, and the
// static capability manifest for operator tooling. Everything here is safe
// to run with unbounded concurrency.
package diag

import (
	"fmt"
	"strings"

	"github.com/quizchain/quizchain/internal/models"
)

// Check identifies one configuration invariant.
type Check string

const (
	CheckSubscription     Check = "subscription_id"
	CheckNetworkID        Check = "network_id"
	CheckEvaluationScript Check = "evaluation_script"
	CheckCallerAuthorized Check = "caller_authorized"
	CheckOracleEndpoint   Check = "oracle_endpoint"
)

// AllChecks lists every configuration invariant in evaluation order.
var AllChecks = []Check{
	CheckSubscription,
	CheckNetworkID,
	CheckEvaluationScript,
	CheckCallerAuthorized,
	CheckOracleEndpoint,
}

// CodeProber answers whether an address is a live, code-bearing endpoint.
type CodeProber interface {
	HasCode(addr models.Address) bool
}

// Report is the outcome of a full configuration validation. Every failed
// check is listed; operators need the complete set, not just the first, to
// fix a broken deployment in one pass.
type Report struct {
	Failed []Check `json:"failed_checks"`
}

// OK reports whether the configuration is ready: all five checks pass.
func (r Report) OK() bool { return len(r.Failed) == 0 }

// Has reports whether a specific check failed.
func (r Report) Has(c Check) bool {
	for _, f := range r.Failed {
		if f == c {
			return true
		}
	}
	return false
}

// Summary renders the failed checks as a single human-readable line.
func (r Report) Summary() string {
	if r.OK() {
		return "configuration ready"
	}
	parts := make([]string, 0, len(r.Failed))
	for _, c := range r.Failed {
		parts = append(parts, string(c))
	}
	return "failed checks: " + strings.Join(parts, ", ")
}

// ValidateConfig runs every configuration check against cfg. caller is the
// address that will dispatch verification requests; it must be a member of
// the authorized caller set. Checks are independent and all reported.
func ValidateConfig(cfg *models.OracleConfig, caller models.Address, prober CodeProber) Report {
	var rep Report
	if cfg == nil {
		rep.Failed = append([]Check(nil), AllChecks...)
		return rep
	}
	if cfg.SubscriptionID == 0 {
		rep.Failed = append(rep.Failed, CheckSubscription)
	}
	if cfg.NetworkID.IsZero() {
		rep.Failed = append(rep.Failed, CheckNetworkID)
	}
	if strings.TrimSpace(cfg.EvaluationScript) == "" {
		rep.Failed = append(rep.Failed, CheckEvaluationScript)
	}
	if !cfg.AuthorizedCallers[caller] {
		rep.Failed = append(rep.Failed, CheckCallerAuthorized)
	}
	if cfg.OracleAddress.IsZero() || prober == nil || !prober.HasCode(cfg.OracleAddress) {
		rep.Failed = append(rep.Failed, CheckOracleEndpoint)
	}
	return rep
}

// ConfigError carries a validation report across an error boundary. It is
// non-fatal: recoverable by fixing configuration or engaging the bypass.
type ConfigError struct {
	Report Report
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("oracle configuration invalid: %s", e.Report.Summary())
}
