// Package db persists registry state, content blobs, and operator accounts
// in SQLite. The store doubles as the registry's journal and the content
// store's durable backend.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quizchain/quizchain/internal/models"
	"github.com/quizchain/quizchain/internal/oracle"
	"github.com/quizchain/quizchain/internal/registry"
	"github.com/quizchain/quizchain/internal/services"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func int64ToBool(v int64) bool { return v != 0 }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- registry.Journal ----------------------------------------------------

func (s *SQLiteStore) RecordQuestionSet(qs *models.QuestionSet) error {
	_, err := s.db.Exec(`
		INSERT INTO question_sets (id, content_hash, question_count, created_at, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET active = excluded.active`,
		qs.ID, qs.ContentHash.Hex(), qs.QuestionCount, formatTime(qs.CreatedAt), boolToInt64(qs.Active))
	if err != nil {
		return fmt.Errorf("record question set: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordAssessment(a *models.Assessment) error {
	_, err := s.db.Exec(`
		INSERT INTO assessments (user, question_set_id, answers_hash, status, score, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user, question_set_id) DO UPDATE SET
			answers_hash = excluded.answers_hash,
			status = excluded.status,
			score = excluded.score,
			updated_at = excluded.updated_at`,
		string(a.User), a.QuestionSetID, a.AnswersHash.Hex(), int(a.Status), a.Score, formatTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("record assessment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordRequest(r *models.VerificationRequest) error {
	var resolvedAt sql.NullString
	if r.ResolvedAt != nil {
		resolvedAt = sql.NullString{String: formatTime(*r.ResolvedAt), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO verification_requests (id, user, question_set_id, submitted_at, resolved_at, score, result_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			resolved_at = excluded.resolved_at,
			score = excluded.score,
			result_hash = excluded.result_hash`,
		r.ID, string(r.User), r.QuestionSetID, formatTime(r.SubmittedAt), resolvedAt, r.Score, r.ResultHash.Hex())
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordConfig(cfg *models.OracleConfig) error {
	callers := make([]string, 0, len(cfg.AuthorizedCallers))
	for a, ok := range cfg.AuthorizedCallers {
		if ok {
			callers = append(callers, string(a))
		}
	}
	callersJSON, err := json.Marshal(callers)
	if err != nil {
		return fmt.Errorf("encode authorized callers: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO oracle_config (id, network_id, subscription_id, oracle_address, evaluation_script, authorized_callers, enabled)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			network_id = excluded.network_id,
			subscription_id = excluded.subscription_id,
			oracle_address = excluded.oracle_address,
			evaluation_script = excluded.evaluation_script,
			authorized_callers = excluded.authorized_callers,
			enabled = excluded.enabled`,
		cfg.NetworkID.Hex(), int64(cfg.SubscriptionID), string(cfg.OracleAddress),
		cfg.EvaluationScript, string(callersJSON), boolToInt64(cfg.Enabled))
	if err != nil {
		return fmt.Errorf("record oracle config: %w", err)
	}
	return nil
}

var _ registry.Journal = (*SQLiteStore)(nil)

// --- state loading -------------------------------------------------------

// LoadState reads the full persisted ledger state for boot or a
// desync-forced reload. Height restarts at the number of recorded rows; only
// relative movement matters to the desync monitor afterwards.
func (s *SQLiteStore) LoadState() (registry.State, error) {
	var st registry.State

	rows, err := s.db.Query(`SELECT id, content_hash, question_count, created_at, active FROM question_sets ORDER BY created_at, id`)
	if err != nil {
		return st, fmt.Errorf("load question sets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			qs      models.QuestionSet
			hashHex string
			created string
			active  int64
		)
		if err := rows.Scan(&qs.ID, &hashHex, &qs.QuestionCount, &created, &active); err != nil {
			return st, fmt.Errorf("scan question set: %w", err)
		}
		qs.ContentHash, _ = models.ParseHash32(hashHex)
		qs.CreatedAt = parseTime(created)
		qs.Active = int64ToBool(active)
		st.QuestionSets = append(st.QuestionSets, &qs)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	arows, err := s.db.Query(`SELECT user, question_set_id, answers_hash, status, score, updated_at FROM assessments`)
	if err != nil {
		return st, fmt.Errorf("load assessments: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var (
			a       models.Assessment
			user    string
			hashHex string
			status  int
			updated string
		)
		if err := arows.Scan(&user, &a.QuestionSetID, &hashHex, &status, &a.Score, &updated); err != nil {
			return st, fmt.Errorf("scan assessment: %w", err)
		}
		a.User = models.Address(user)
		a.AnswersHash, _ = models.ParseHash32(hashHex)
		a.Status = models.AssessmentStatus(status)
		a.UpdatedAt = parseTime(updated)
		st.Assessments = append(st.Assessments, &a)
	}
	if err := arows.Err(); err != nil {
		return st, err
	}

	rrows, err := s.db.Query(`SELECT id, user, question_set_id, submitted_at, resolved_at, score, result_hash FROM verification_requests`)
	if err != nil {
		return st, fmt.Errorf("load requests: %w", err)
	}
	defer rrows.Close()
	for rrows.Next() {
		var (
			r         models.VerificationRequest
			user      string
			submitted string
			resolved  sql.NullString
			hashHex   string
		)
		if err := rrows.Scan(&r.ID, &user, &r.QuestionSetID, &submitted, &resolved, &r.Score, &hashHex); err != nil {
			return st, fmt.Errorf("scan request: %w", err)
		}
		r.User = models.Address(user)
		r.SubmittedAt = parseTime(submitted)
		if resolved.Valid {
			t := parseTime(resolved.String)
			r.ResolvedAt = &t
		}
		r.ResultHash, _ = models.ParseHash32(hashHex)
		st.Requests = append(st.Requests, &r)
	}
	if err := rrows.Err(); err != nil {
		return st, err
	}

	cfg, err := s.loadConfig()
	if err != nil {
		return st, err
	}
	st.Config = cfg
	st.Height = uint64(len(st.QuestionSets) + len(st.Assessments) + len(st.Requests))
	return st, nil
}

func (s *SQLiteStore) loadConfig() (*models.OracleConfig, error) {
	row := s.db.QueryRow(`SELECT network_id, subscription_id, oracle_address, evaluation_script, authorized_callers, enabled FROM oracle_config WHERE id = 1`)
	var (
		networkHex  string
		subID       int64
		oracleAddr  string
		script      string
		callersJSON string
		enabled     int64
	)
	err := row.Scan(&networkHex, &subID, &oracleAddr, &script, &callersJSON, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load oracle config: %w", err)
	}
	cfg := &models.OracleConfig{
		SubscriptionID:    uint64(subID),
		OracleAddress:     models.Address(oracleAddr),
		EvaluationScript:  script,
		AuthorizedCallers: map[models.Address]bool{},
		Enabled:           int64ToBool(enabled),
	}
	cfg.NetworkID, _ = models.ParseHash32(networkHex)
	var callers []string
	if err := json.Unmarshal([]byte(callersJSON), &callers); err == nil {
		for _, c := range callers {
			cfg.AuthorizedCallers[models.Address(c)] = true
		}
	}
	return cfg, nil
}

// --- oracle.ContentStore -------------------------------------------------

func (s *SQLiteStore) Put(ctx context.Context, data []byte) (models.Hash32, error) {
	h := oracle.HashContent(data)
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO content_blobs (hash, data) VALUES (?, ?)`, h.Hex(), data)
	if err != nil {
		return models.ZeroHash, fmt.Errorf("put content: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) Get(ctx context.Context, hash models.Hash32) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM content_blobs WHERE hash = ?`, hash.Hex())
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", oracle.ErrContentNotFound, hash.Hex())
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	return data, nil
}

var _ oracle.ContentStore = (*SQLiteStore)(nil)

// --- services.AuthStore --------------------------------------------------

func (s *SQLiteStore) FindUserByEmail(email string) (*services.User, error) {
	row := s.db.QueryRow(`SELECT id, email, pass_hash, created_at FROM users WHERE email = ?`, email)
	var (
		u       services.User
		created string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PassHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func (s *SQLiteStore) CountUsers() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) AddUser(u *services.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, email, pass_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

var _ services.AuthStore = (*SQLiteStore)(nil)
