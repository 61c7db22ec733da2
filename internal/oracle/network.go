package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quizchain/quizchain/internal/models"
	"github.com/quizchain/quizchain/internal/registry"
)

// Resolver receives grading results. The registry implements it; the return
// value reports whether the callback was applied or ignored as stale.
type Resolver interface {
	Resolve(requestID string, score int, resultHash models.Hash32) bool
}

var errNetworkClosed = errors.New("oracle network is not accepting jobs")

// Network is the in-process oracle network: it accepts dispatched jobs,
// evaluates them asynchronously, and delivers results back through the
// resolver callback. Evaluation is single-shot per request; there is no
// cancellation primitive, matching the real network's contract.
type Network struct {
	runner   *Runner
	resolver Resolver
	log      *zap.Logger
	timeout  time.Duration

	jobs   chan registry.Job
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	closed bool
}

// NetworkParams configures the in-process oracle network.
type NetworkParams struct {
	Runner    *Runner
	Resolver  Resolver
	QueueSize int
	Workers   int
	Timeout   time.Duration
	Logger    *zap.Logger
}

func NewNetwork(p NetworkParams) *Network {
	if p.QueueSize <= 0 {
		p.QueueSize = 64
	}
	if p.Workers <= 0 {
		p.Workers = 2
	}
	if p.Timeout <= 0 {
		p.Timeout = 2 * time.Minute
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	n := &Network{
		runner:   p.Runner,
		resolver: p.Resolver,
		log:      log.Named("oracle"),
		timeout:  p.Timeout,
		jobs:     make(chan registry.Job, p.QueueSize),
	}
	n.startWorkers(p.Workers)
	return n
}

func (n *Network) startWorkers(workers int) {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job, ok := <-n.jobs:
					if !ok {
						return nil
					}
					n.evaluate(gctx, job)
				}
			}
		})
	}
	n.group = g
}

func (n *Network) evaluate(ctx context.Context, job registry.Job) {
	jctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	wire := n.runner.Evaluate(jctx, job)
	score, hash, err := ParseWire(wire)
	if err != nil {
		// The runner's contract forbids this, but nothing is ever dropped
		// silently: resolve with the failure value.
		n.log.Error("malformed wire value from runner", zap.String("request_id", job.RequestID), zap.Error(err))
		score, hash = 0, models.ZeroHash
	}
	applied := n.resolver.Resolve(job.RequestID, score, hash)
	n.log.Info("evaluation delivered",
		zap.String("request_id", job.RequestID),
		zap.Int("score", score),
		zap.Bool("applied", applied))
}

// Send enqueues a job without blocking. A full queue or closed network is an
// error: the dispatcher surfaces it as a dispatch failure rather than
// queueing behind the caller's back.
func (n *Network) Send(job registry.Job) error {
	// The mutex stays held across the enqueue so Close cannot close the
	// channel between the closed check and the send. The send never blocks
	// under the lock thanks to the default arm.
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errNetworkClosed
	}
	select {
	case n.jobs <- job:
		return nil
	default:
		return errors.New("oracle network queue is full")
	}
}

// Close stops accepting jobs, drains the queue, and waits for workers.
func (n *Network) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.jobs)
	n.mu.Unlock()
	_ = n.group.Wait()
	n.cancel()
}
