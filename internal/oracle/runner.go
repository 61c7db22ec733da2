package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quizchain/quizchain/internal/models"
	"github.com/quizchain/quizchain/internal/registry"
)

// FailureWire is returned on total failure so the callback path always
// resolves the request instead of leaving it stuck in verifying.
var FailureWire = "0," + models.ZeroHash.Hex()

// QuestionEvidence records one graded question inside the evidence object.
type QuestionEvidence struct {
	Index    int    `json:"index"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Evidence is the package whose hash becomes the on-ledger result hash.
type Evidence struct {
	RequestID     string             `json:"request_id"`
	QuestionSetID string             `json:"question_set_id"`
	AnswersHash   models.Hash32      `json:"answers_hash"`
	ContentHash   models.Hash32      `json:"content_hash"`
	Questions     []QuestionEvidence `json:"questions"`
	Overall       int                `json:"overall"`
	Degraded      bool               `json:"degraded,omitempty"`
	GradedAt      time.Time          `json:"graded_at"`
}

// Runner executes one grading request on behalf of the oracle network:
// resolve both hashes to content, grade each question, aggregate, and return
// the wire value "<score>,<result hash>".
type Runner struct {
	content  ContentStore
	grader   Grader
	fallback Grader
	log      *zap.Logger
	limit    int
	now      func() time.Time
}

func NewRunner(content ContentStore, grader Grader, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		content:  content,
		grader:   grader,
		fallback: HeuristicGrader{},
		log:      log.Named("runner"),
		limit:    4,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate grades one job and returns the wire value. It never returns an
// error: any failure that cannot be degraded yields FailureWire so the
// request still resolves.
func (r *Runner) Evaluate(ctx context.Context, job registry.Job) string {
	questions, answers, err := r.fetch(ctx, job)
	if err != nil {
		r.log.Error("evaluation failed before grading", zap.String("request_id", job.RequestID), zap.Error(err))
		return FailureWire
	}

	ev := Evidence{
		RequestID:     job.RequestID,
		QuestionSetID: job.QuestionSetID,
		AnswersHash:   job.AnswersHash,
		ContentHash:   job.ContentHash,
		Questions:     make([]QuestionEvidence, len(questions)),
		GradedAt:      r.now(),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i := range questions {
		g.Go(func() error {
			answer := ""
			if i < len(answers) {
				answer = answers[i]
			}
			res, degraded := r.gradeOne(gctx, questions[i], answer)
			mu.Lock()
			ev.Questions[i] = QuestionEvidence{Index: i, Score: res.Score, Feedback: res.Feedback, Degraded: degraded}
			if degraded {
				ev.Degraded = true
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; they degrade instead

	total := 0
	for _, q := range ev.Questions {
		total += q.Score
	}
	if len(ev.Questions) > 0 {
		ev.Overall = total / len(ev.Questions) // floor of the mean
	}
	ev.Overall = clampScore(ev.Overall)

	raw, err := EncodeContent(&ev)
	if err != nil {
		r.log.Error("encode evidence", zap.String("request_id", job.RequestID), zap.Error(err))
		return FailureWire
	}
	resultHash := HashContent(raw)
	if _, err := r.content.Put(ctx, raw); err != nil {
		// Evidence storage is best effort; the hash still commits the result.
		r.log.Warn("store evidence", zap.String("request_id", job.RequestID), zap.Error(err))
	}
	return fmt.Sprintf("%d,%s", ev.Overall, resultHash.Hex())
}

func (r *Runner) fetch(ctx context.Context, job registry.Job) ([]Question, []string, error) {
	qRaw, err := r.content.Get(ctx, job.ContentHash)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch questions: %w", err)
	}
	qp, err := DecodeQuestionPayload(qRaw)
	if err != nil {
		return nil, nil, err
	}
	aRaw, err := r.content.Get(ctx, job.AnswersHash)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch answers: %w", err)
	}
	ap, err := DecodeAnswerPayload(aRaw)
	if err != nil {
		return nil, nil, err
	}
	return qp.Questions, ap.Answers, nil
}

// gradeOne tries the external grader and falls back to the heuristic when it
// is unavailable. The degraded flag is carried into the evidence object.
func (r *Runner) gradeOne(ctx context.Context, q Question, answer string) (GradeResult, bool) {
	if r.grader != nil {
		res, err := r.grader.Grade(ctx, q, answer)
		if err == nil {
			res.Score = clampScore(res.Score)
			return res, false
		}
		r.log.Warn("grading service unavailable, using heuristic", zap.Error(err))
	}
	res, _ := r.fallback.Grade(ctx, q, answer) // heuristic cannot fail
	return res, true
}

// ParseWire splits the "<score>,<0xhash>" wire value.
func ParseWire(s string) (int, models.Hash32, error) {
	scorePart, hashPart, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return 0, models.ZeroHash, fmt.Errorf("malformed wire value %q", s)
	}
	score, err := strconv.Atoi(scorePart)
	if err != nil {
		return 0, models.ZeroHash, fmt.Errorf("malformed wire score %q: %w", scorePart, err)
	}
	h, err := models.ParseHash32(hashPart)
	if err != nil {
		return 0, models.ZeroHash, err
	}
	return clampScore(score), h, nil
}
