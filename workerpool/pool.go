package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/shm"
	"github.com/woofstack/platform/types"
)

// Job is a unit of work handed to the pool: an invocation command to run
// against the function's collaborator process, and the channel the
// submitting caller is waiting on for the result.
type Job struct {
	Command *types.Command
	Done    chan jobResult
}

type jobResult struct {
	result *types.Result
	err    error
}

// Pool dispatches jobs to a single collaborator process via a bounded
// queue and a fixed number of goroutine fibres. The collaborator itself
// tolerates concurrent Sends (it demultiplexes replies by RequestID), so
// fibres beyond one buys queueing concurrency without needing more
// processes; the fibre count mirrors the original design's fixed worker
// thread count per function.
type Pool struct {
	collaborator *Collaborator
	queue        *shm.BoundedQueue[Job]
	log          *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a pool of numFibres goroutines pulling from a queue of the
// given depth, all dispatching against collaborator.
func New(collaborator *Collaborator, queueDepth, numFibres int, log *zap.Logger) *Pool {
	if numFibres <= 0 {
		numFibres = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		collaborator: collaborator,
		queue:        shm.NewBoundedQueue[Job](queueDepth),
		log:          log,
		cancel:       cancel,
	}

	for i := 0; i < numFibres; i++ {
		p.wg.Add(1)
		go p.fibre(ctx)
	}

	return p
}

func (p *Pool) fibre(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.queue.Chan():
			if !ok {
				return
			}
			result, err := p.collaborator.Send(ctx, job.Command)
			job.Done <- jobResult{result: result, err: err}
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues cmd and blocks for its result, respecting ctx.
func (p *Pool) Submit(ctx context.Context, cmd *types.Command) (*types.Result, error) {
	job := Job{Command: cmd, Done: make(chan jobResult, 1)}

	// A full queue applies backpressure: the submitter blocks until a
	// fibre frees a slot or its deadline passes.
	if err := p.queue.PushCtx(ctx, job); err != nil {
		return nil, errs.TimedOut("workerpool.Submit", err.Error())
	}

	select {
	case res := <-job.Done:
		return res.result, res.err
	case <-ctx.Done():
		return nil, errs.TimedOut("workerpool.Submit", ctx.Err().Error())
	}
}

// Close stops all fibres and terminates the underlying collaborator
// process.
func (p *Pool) Close() error {
	p.cancel()
	p.wg.Wait()
	return p.collaborator.Kill()
}
