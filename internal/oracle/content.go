// Package oracle implements the off-chain evaluation side of the protocol:
// the content-addressed payload store, the grading clients, the evaluation
// runner executed on behalf of the oracle network, and the asynchronous
// network loop that delivers results back to the registry.
package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/quizchain/quizchain/internal/models"
)

// ErrContentNotFound is returned when a hash resolves to nothing.
var ErrContentNotFound = errors.New("content not found")

// ContentStore is an opaque hash -> blob lookup. Question and answer
// payloads live here; only their hashes cross the ledger boundary.
type ContentStore interface {
	Put(ctx context.Context, data []byte) (models.Hash32, error)
	Get(ctx context.Context, hash models.Hash32) ([]byte, error)
}

// HashContent computes the content address of a payload.
func HashContent(data []byte) models.Hash32 {
	return models.Hash32(sha256.Sum256(data))
}

// Question is one free-form question with an optional reference answer used
// for grading.
type Question struct {
	Text      string `json:"text"`
	Reference string `json:"reference,omitempty"`
}

// QuestionPayload is the content stored for a question set.
type QuestionPayload struct {
	Questions []Question `json:"questions"`
}

// AnswerPayload is the content stored for one user's answers, ordered to
// match the question payload.
type AnswerPayload struct {
	Answers []string `json:"answers"`
}

// EncodeContent marshals a payload to its canonical stored form.
func EncodeContent(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeQuestionPayload parses stored question content.
func DecodeQuestionPayload(data []byte) (*QuestionPayload, error) {
	var p QuestionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode question payload: %w", err)
	}
	return &p, nil
}

// DecodeAnswerPayload parses stored answer content.
func DecodeAnswerPayload(data []byte) (*AnswerPayload, error) {
	var p AnswerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode answer payload: %w", err)
	}
	return &p, nil
}

// MemoryContentStore is the in-process content store used in development and
// tests. Safe for concurrent use.
type MemoryContentStore struct {
	mu    sync.RWMutex
	blobs map[models.Hash32][]byte
}

func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{blobs: map[models.Hash32][]byte{}}
}

func (s *MemoryContentStore) Put(_ context.Context, data []byte) (models.Hash32, error) {
	h := HashContent(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[h] = cp
	return h, nil
}

func (s *MemoryContentStore) Get(_ context.Context, hash models.Hash32) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, hash.Hex())
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}
