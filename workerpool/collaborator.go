// Package workerpool spawns and drives the per-function collaborator
// worker process: an isolated subprocess running one function's handler
// code, reached over a length-prefixed msgpack command/result protocol on
// its stdin/stdout, fed by a bounded job queue and a small fleet of
// goroutine "fibres" standing in for the original system's worker threads.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/ipc"
	"github.com/woofstack/platform/types"
)

// CollaboratorConfig configures a spawned collaborator process.
type CollaboratorConfig struct {
	// WorkerBinPath is the path to the collaborator worker binary.
	WorkerBinPath string
	// ExtraArgs are additional argv entries for the worker binary,
	// typically its resource bounds (--fibres, --queue-depth).
	ExtraArgs []string
	// InstallDir is the unzipped function code's install directory.
	InstallDir string
	// Handler is the "pkg.func" handler identifier.
	Handler string
}

// Collaborator manages one spawned worker process's lifecycle and
// command/result correlation. Multiple fibres may send commands through
// the same Collaborator concurrently; writes are serialized and replies
// are demultiplexed back to the right caller by RequestID.
type Collaborator struct {
	config CollaboratorConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *types.Result

	readErr chan error
}

// Start spawns the collaborator process and sends its InitDir command.
// ctx bounds the handshake only; the process outlives it and runs until
// Kill (the installation's lifetime, not the spawning request's).
func Start(ctx context.Context, cfg CollaboratorConfig) (*Collaborator, error) {
	cmd := exec.Command(cfg.WorkerBinPath, cfg.ExtraArgs...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errs.Service("workerpool.Start", fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errs.Service("workerpool.Start", fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errs.Service("workerpool.Start", fmt.Errorf("stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, errs.Service("workerpool.Start", fmt.Errorf("start collaborator: %w", err))
	}

	c, err := Attach(ctx, cfg, stdin, stdout, stderr)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}
	c.cmd = cmd

	return c, nil
}

// Attach wires a Collaborator around an already-established transport —
// the pipes of a process someone else spawned, or an in-process pipe pair
// in tests and lambda-api's --in-process mode — and performs the InitDir
// handshake.
// The returned Collaborator has no owned process; Kill is a no-op.
func Attach(ctx context.Context, cfg CollaboratorConfig, stdin io.WriteCloser, stdout, stderr io.Reader) (*Collaborator, error) {
	c := newCollaborator(cfg, stdin, stdout, stderr)

	if _, err := c.Send(ctx, &types.Command{
		Tag:     types.CommandInitDir,
		InitDir: &types.InitDirArgs{InstallDir: cfg.InstallDir, Handler: cfg.Handler},
	}); err != nil {
		_ = stdin.Close()
		return nil, err
	}

	return c, nil
}

// newCollaborator wires a Collaborator around an already-running process's
// pipes (or, in tests, a pair of in-memory pipes standing in for them) and
// starts its reply-demultiplexing read loop.
func newCollaborator(cfg CollaboratorConfig, stdin io.WriteCloser, stdout, stderr io.Reader) *Collaborator {
	c := &Collaborator{
		config:  cfg,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		pending: make(map[string]chan *types.Result),
		readErr: make(chan error, 1),
	}
	go c.readLoop()
	return c
}

// readLoop demultiplexes Result frames from the collaborator's stdout to
// whichever pending Send call is waiting on that RequestID. Runs for the
// lifetime of the process; its exit (clean EOF or frame error) is
// reported on readErr and used to fail any still-pending sends.
func (c *Collaborator) readLoop() {
	dec := ipc.NewFrameDecoder(c.stdout)
	for {
		payload, err := dec.ReadFrame()
		if err != nil {
			c.failAllPending(err)
			c.readErr <- err
			return
		}

		result, err := ipc.DecodeResult(payload)
		if err != nil {
			continue // malformed frame: drop and keep reading
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[result.RequestID]
		if ok {
			delete(c.pending, result.RequestID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- result
		}
	}
}

func (c *Collaborator) failAllPending(cause error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- &types.Result{RequestID: id, Err: cause.Error()}
		delete(c.pending, id)
	}
}

// Send writes cmd to the collaborator and blocks for its matching Result,
// respecting ctx cancellation.
func (c *Collaborator) Send(ctx context.Context, cmd *types.Command) (*types.Result, error) {
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}

	ch := make(chan *types.Result, 1)
	c.pendingMu.Lock()
	c.pending[cmd.RequestID] = ch
	c.pendingMu.Unlock()

	frame, err := ipc.EncodeCommand(cmd)
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, cmd.RequestID)
		c.pendingMu.Unlock()
		return nil, errs.Service("workerpool.Send", err)
	}

	c.writeMu.Lock()
	_, writeErr := c.stdin.Write(frame)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.pendingMu.Lock()
		delete(c.pending, cmd.RequestID)
		c.pendingMu.Unlock()
		return nil, errs.Service("workerpool.Send", writeErr)
	}

	select {
	case result := <-ch:
		if result.Err != "" {
			return result, errs.Service("workerpool.Send", errors.New(result.Err))
		}
		return result, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, cmd.RequestID)
		c.pendingMu.Unlock()
		return nil, errs.TimedOut("workerpool.Send", ctx.Err().Error())
	}
}

// Kill closes the command stream and terminates the collaborator process
// if this Collaborator owns one. For attached transports, closing stdin
// is what ends the far side's serve loop.
func (c *Collaborator) Kill() error {
	_ = c.stdin.Close()
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

// Wait blocks until the collaborator process exits.
func (c *Collaborator) Wait() error {
	return c.cmd.Wait()
}

// Stderr returns the collaborator's stderr stream, for diagnostic capture.
func (c *Collaborator) Stderr() io.Reader {
	return c.stderr
}
