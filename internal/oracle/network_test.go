package oracle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/quizchain/quizchain/internal/models"
	"github.com/quizchain/quizchain/internal/registry"
)

func TestMain(m *testing.M) {
	// The genai dependency chain starts an opencensus stats worker at package
	// init; it is process-lifetime, not a leak.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type recordingResolver struct {
	mu       sync.Mutex
	resolved map[string]int
	done     chan struct{}
	want     int
}

func newRecordingResolver(want int) *recordingResolver {
	return &recordingResolver{resolved: map[string]int{}, done: make(chan struct{}), want: want}
}

func (r *recordingResolver) Resolve(requestID string, score int, _ models.Hash32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved[requestID] = score
	if len(r.resolved) == r.want {
		close(r.done)
	}
	return true
}

func (r *recordingResolver) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for resolutions")
	}
}

func TestNetworkDeliversResults(t *testing.T) {
	store := NewMemoryContentStore()
	jobA := storePayloads(t, store, []Question{{Text: "a"}}, []string{"x"})
	jobA.RequestID = "req-a"
	jobB := jobA
	jobB.RequestID = "req-b"

	resolver := newRecordingResolver(2)
	n := NewNetwork(NetworkParams{
		Runner:   NewRunner(store, scriptedGrader{scores: map[string]int{"a": 75}}, nil),
		Resolver: resolver,
		Workers:  2,
	})
	defer n.Close()

	require.NoError(t, n.Send(jobA))
	require.NoError(t, n.Send(jobB))
	resolver.wait(t)

	assert.Equal(t, map[string]int{"req-a": 75, "req-b": 75}, resolver.resolved)
}

func TestNetworkResolvesEvenOnTotalFailure(t *testing.T) {
	store := NewMemoryContentStore()
	resolver := newRecordingResolver(1)
	n := NewNetwork(NetworkParams{
		Runner:   NewRunner(store, nil, nil),
		Resolver: resolver,
	})
	defer n.Close()

	// Content that was never stored: evaluation fails but the request still
	// resolves with the failure value rather than staying stuck in verifying.
	require.NoError(t, n.Send(registry.Job{
		RequestID:   "req-x",
		AnswersHash: models.Hash32{31: 1},
		ContentHash: models.Hash32{31: 2},
	}))
	resolver.wait(t)
	assert.Equal(t, 0, resolver.resolved["req-x"])
}

func TestNetworkRejectsAfterClose(t *testing.T) {
	store := NewMemoryContentStore()
	n := NewNetwork(NetworkParams{
		Runner:   NewRunner(store, nil, nil),
		Resolver: newRecordingResolver(1),
	})
	n.Close()
	assert.Error(t, n.Send(registry.Job{RequestID: "late"}))
	n.Close() // idempotent
}

func TestNetworkSendDuringCloseIsSafe(t *testing.T) {
	store := NewMemoryContentStore()
	job := storePayloads(t, store, []Question{{Text: "a"}}, []string{"x"})

	for i := 0; i < 100; i++ {
		n := NewNetwork(NetworkParams{
			Runner:   NewRunner(store, scriptedGrader{}, nil),
			Resolver: nopResolver{},
			Workers:  1,
		})
		var wg sync.WaitGroup
		for s := 0; s < 4; s++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Accepted or rejected are both fine; the send must never
				// panic while Close shuts the channel down.
				_ = n.Send(job)
			}()
		}
		n.Close()
		wg.Wait()
		assert.ErrorIs(t, n.Send(job), errNetworkClosed)
	}
}

func TestNetworkRejectsWhenQueueFull(t *testing.T) {
	store := NewMemoryContentStore()
	job := storePayloads(t, store, []Question{{Text: "a"}}, []string{"x"})

	resolver := &blockingResolver{entered: make(chan struct{}, 2), release: make(chan struct{})}
	n := NewNetwork(NetworkParams{
		Runner:    NewRunner(store, scriptedGrader{}, nil),
		Resolver:  resolver,
		QueueSize: 1,
		Workers:   1,
	})
	defer n.Close()
	defer close(resolver.release)

	// First job occupies the worker, second fills the queue; the third is
	// rejected instead of blocking the dispatcher.
	require.NoError(t, n.Send(job))
	select {
	case <-resolver.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker")
	}
	require.NoError(t, n.Send(job))
	assert.Error(t, n.Send(job))
}

type nopResolver struct{}

func (nopResolver) Resolve(string, int, models.Hash32) bool { return true }

type blockingResolver struct {
	entered chan struct{}
	release chan struct{}
}

func (r *blockingResolver) Resolve(string, int, models.Hash32) bool {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-r.release
	return true
}

func TestContentStoreRoundTrip(t *testing.T) {
	store := NewMemoryContentStore()
	data := []byte(`{"answers":["alpha"]}`)

	hash, err := store.Put(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, HashContent(data), hash)

	got, err := store.Get(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = store.Get(context.Background(), models.Hash32{31: 9})
	assert.ErrorIs(t, err, ErrContentNotFound)
}
