package models

// Call methods accepted by the ledger registry. The set is static: operator
// tooling enumerates capabilities from a generated manifest, never from
// runtime reflection.
const (
	CallSubmitAnswers = "submit_answers"
	CallRestart       = "restart"
	CallSetActive     = "set_question_set_active"
	CallSetUseOracle  = "set_use_oracle"
)

// Call is the wire representation of a state-changing ledger call. It is
// what preflight simulation executes against a snapshot before the real
// transaction is committed.
type Call struct {
	Method        string  `json:"method"`
	Caller        Address `json:"caller"`
	User          Address `json:"user,omitempty"`
	QuestionSetID string  `json:"question_set_id,omitempty"`
	AnswersHash   Hash32  `json:"answers_hash,omitempty"`
	Active        bool    `json:"active,omitempty"`
	Enabled       bool    `json:"enabled,omitempty"`
}
