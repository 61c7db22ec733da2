package diag

import "github.com/quizchain/quizchain/internal/models"

// Capability describes one callable ledger operation for operator tooling.
// The manifest is static: inspection never falls back to runtime reflection.
type Capability struct {
	Method    string   `json:"method"`
	Mutating  bool     `json:"mutating"`
	AdminOnly bool     `json:"admin_only"`
	Params    []string `json:"params"`
	Summary   string   `json:"summary"`
}

// Manifest returns the capability manifest for the registry call surface.
func Manifest() []Capability {
	return []Capability{
		{
			Method:   models.CallSubmitAnswers,
			Mutating: true,
			Params:   []string{"caller", "question_set_id", "answers_hash"},
			Summary:  "submit an answers hash and dispatch oracle verification",
		},
		{
			Method:   models.CallRestart,
			Mutating: true,
			Params:   []string{"caller", "user", "question_set_id"},
			Summary:  "reset an assessment to not_started, invalidating any outstanding request",
		},
		{
			Method:    models.CallSetActive,
			Mutating:  true,
			AdminOnly: true,
			Params:    []string{"caller", "question_set_id", "active"},
			Summary:   "activate or deactivate a question set",
		},
		{
			Method:    models.CallSetUseOracle,
			Mutating:  true,
			AdminOnly: true,
			Params:    []string{"caller", "enabled"},
			Summary:   "toggle oracle dispatch; disabled means synchronous bypass grading",
		},
	}
}
