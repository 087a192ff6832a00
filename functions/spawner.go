package functions

import (
	"context"
	"fmt"
	"io"

	"github.com/woofstack/platform/worker"
	"github.com/woofstack/platform/workerpool"
)

// Spawner materialises the collaborator worker for an installation.
// The production implementation forks the woof-worker binary; tests and
// lambda-api's --in-process mode run the same worker loop over in-memory
// pipes.
type Spawner interface {
	Spawn(ctx context.Context, cfg workerpool.CollaboratorConfig) (*workerpool.Collaborator, error)
}

// ProcessSpawner launches the woof-worker binary as a child process with
// bounded resources.
type ProcessSpawner struct {
	// BinPath is the woof-worker binary path.
	BinPath string
	// Fibres and QueueDepth bound the worker's internal execution pool.
	Fibres     int
	QueueDepth int
}

func (s *ProcessSpawner) Spawn(ctx context.Context, cfg workerpool.CollaboratorConfig) (*workerpool.Collaborator, error) {
	cfg.WorkerBinPath = s.BinPath
	if s.Fibres > 0 {
		cfg.ExtraArgs = append(cfg.ExtraArgs, "--fibres", fmt.Sprint(s.Fibres))
	}
	if s.QueueDepth > 0 {
		cfg.ExtraArgs = append(cfg.ExtraArgs, "--queue-depth", fmt.Sprint(s.QueueDepth))
	}
	return workerpool.Start(ctx, cfg)
}

// InProcessSpawner runs the collaborator loop in this process over pipe
// transports, with a fresh Lua executor per installation. No subprocess
// is involved; everything else (the frame protocol, the install-dir woof
// store) behaves identically to the spawned binary.
type InProcessSpawner struct {
	Options worker.Options
}

func (s *InProcessSpawner) Spawn(ctx context.Context, cfg workerpool.CollaboratorConfig) (*workerpool.Collaborator, error) {
	cmdR, cmdW := io.Pipe()
	resR, resW := io.Pipe()

	go func() {
		_ = worker.Serve(cmdR, resW, worker.NewLuaExecutor(), s.Options)
	}()

	return workerpool.Attach(ctx, cfg, cmdW, resR, nil)
}
