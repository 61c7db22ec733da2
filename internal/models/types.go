package models

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Hash32 is a 32-byte content digest, rendered as a 0x-prefixed hex string.
type Hash32 [32]byte

// ZeroHash is the all-zero digest used as the "no result" sentinel.
var ZeroHash Hash32

// ParseHash32 parses a 0x-prefixed (or bare) 64-char hex string.
func ParseHash32(s string) (Hash32, error) {
	var h Hash32
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != 32 {
		return h, fmt.Errorf("parse hash: want 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash32) Hex() string  { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash32) IsZero() bool { return h == ZeroHash }

func (h Hash32) MarshalJSON() ([]byte, error) { return json.Marshal(h.Hex()) }

func (h *Hash32) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHash32(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Address identifies a wallet or contract endpoint. Stored lowercased.
type Address string

// NormalizeAddress lowercases and trims an address string.
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

func (a Address) IsZero() bool { return a == "" }

// AssessmentStatus is the lifecycle state of a user's attempt at a question set.
type AssessmentStatus int

const (
	StatusNotStarted AssessmentStatus = iota
	StatusInProgress
	StatusVerifying
	StatusCompleted
)

func (s AssessmentStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusInProgress:
		return "in_progress"
	case StatusVerifying:
		return "verifying"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s AssessmentStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *AssessmentStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "not_started":
		*s = StatusNotStarted
	case "in_progress":
		*s = StatusInProgress
	case "verifying":
		*s = StatusVerifying
	case "completed":
		*s = StatusCompleted
	default:
		return fmt.Errorf("unknown assessment status %q", v)
	}
	return nil
}

// QuestionSet is an administrator-published assessment. ContentHash addresses
// the question payload in the content store and is immutable once set;
// Active is the only mutable field.
type QuestionSet struct {
	ID            string    `json:"id"`
	ContentHash   Hash32    `json:"content_hash"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
	Active        bool      `json:"active"`
}

// Assessment is the live record of one user's attempt at one question set.
// At most one exists per (user, question set) pair.
type Assessment struct {
	User          Address          `json:"user"`
	QuestionSetID string           `json:"question_set_id"`
	AnswersHash   Hash32           `json:"answers_hash"`
	Status        AssessmentStatus `json:"status"`
	Score         int              `json:"score"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// OracleConfig is the singleton oracle-network configuration. Enabled is the
// bypass flag: when false, submissions grade synchronously instead of
// dispatching to the oracle network.
type OracleConfig struct {
	NetworkID         Hash32           `json:"network_id"`
	SubscriptionID    uint64           `json:"subscription_id"`
	OracleAddress     Address          `json:"oracle_address"`
	EvaluationScript  string           `json:"evaluation_script"`
	AuthorizedCallers map[Address]bool `json:"authorized_callers"`
	Enabled           bool             `json:"enabled"`
}

// Clone returns a deep copy; AuthorizedCallers is never shared.
func (c *OracleConfig) Clone() *OracleConfig {
	cp := *c
	cp.AuthorizedCallers = make(map[Address]bool, len(c.AuthorizedCallers))
	for a, ok := range c.AuthorizedCallers {
		cp.AuthorizedCallers[a] = ok
	}
	return &cp
}

// VerificationRequest tracks one in-flight (or resolved) oracle grading
// request. Exactly one unresolved request may exist per assessment.
type VerificationRequest struct {
	ID            string     `json:"id"`
	User          Address    `json:"user"`
	QuestionSetID string     `json:"question_set_id"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	Score         int        `json:"score"`
	ResultHash    Hash32     `json:"result_hash"`
}

// Resolved reports whether the oracle callback has landed for this request.
func (r *VerificationRequest) Resolved() bool { return r.ResolvedAt != nil }
