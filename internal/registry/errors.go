package registry

import "fmt"

// RevertError is the structured failure a ledger operation aborts with. Code
// is a stable machine-readable tag; Reason is the human-readable revert
// string surfaced by preflight simulation and diagnostics.
type RevertError struct {
	Code   string
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("revert %s: %s", e.Code, e.Reason)
}

// Is matches any RevertError with the same code, so wrapped reverts still
// compare against the sentinels below.
func (e *RevertError) Is(target error) bool {
	t, ok := target.(*RevertError)
	return ok && t.Code == e.Code
}

// RevertCode and RevertReason satisfy the structured-revert decode used by
// preflight simulation.
func (e *RevertError) RevertCode() string   { return e.Code }
func (e *RevertError) RevertReason() string { return e.Reason }

// State errors: rejected before any external call, per the assessment state
// machine. The caller sees the current state and can decide to restart.
var (
	ErrQuestionSetNotFound = &RevertError{Code: "question_set_not_found", Reason: "question set does not exist"}
	ErrQuestionSetInactive = &RevertError{Code: "question_set_inactive", Reason: "question set is not active"}
	ErrAlreadyVerifying    = &RevertError{Code: "already_verifying", Reason: "assessment is already awaiting verification"}
	ErrAlreadyCompleted    = &RevertError{Code: "already_completed", Reason: "assessment is already completed; restart first"}
	ErrRequestOutstanding  = &RevertError{Code: "request_outstanding", Reason: "an unresolved verification request already exists"}
)

// Authorization and dispatch errors.
var (
	ErrNotAuthorized  = &RevertError{Code: "not_authorized", Reason: "caller is not authorized"}
	ErrNotAdmin       = &RevertError{Code: "not_admin", Reason: "caller is not the administrator"}
	ErrDispatchFailed = &RevertError{Code: "dispatch_failed", Reason: "oracle network rejected the verification request"}
	ErrDuplicateID    = &RevertError{Code: "duplicate_id", Reason: "identifier already in use"}
)
