package oracle

import (
	"context"
	"strings"
)

// HeuristicGrader is the degraded fallback used when the external grading
// service is unavailable: a deterministic keyword-overlap score against the
// reference answer. Best effort only, but always within [0,100].
type HeuristicGrader struct{}

func (HeuristicGrader) Grade(_ context.Context, q Question, answer string) (GradeResult, error) {
	ref := tokenize(q.Reference)
	if len(ref) == 0 {
		// No reference to compare against; non-empty answers get the
		// midpoint rather than an arbitrary pass or fail.
		if strings.TrimSpace(answer) == "" {
			return GradeResult{Score: 0, Feedback: "empty answer"}, nil
		}
		return GradeResult{Score: 50, Feedback: "no reference answer; heuristic midpoint"}, nil
	}
	got := map[string]bool{}
	for _, w := range tokenize(answer) {
		got[w] = true
	}
	matched := 0
	for _, w := range ref {
		if got[w] {
			matched++
		}
	}
	score := clampScore(matched * 100 / len(ref))
	return GradeResult{Score: score, Feedback: "heuristic keyword-overlap score"}, nil
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if len(f) > 2 { // drop stop-word noise
			out = append(out, f)
		}
	}
	return out
}
