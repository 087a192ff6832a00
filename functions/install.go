package functions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/ipc"
	"github.com/woofstack/platform/shm"
	"github.com/woofstack/platform/types"
	"github.com/woofstack/platform/woof"
	"github.com/woofstack/platform/workerpool"
)

// lease is one result log's exclusive-use capability: the log id and the
// last seqno the holder observed on it. A lease returned to the pool
// always carries a seqno at least as new as the log's latest record at
// release time, so the next holder's wait never matches a stale result.
type lease struct {
	logID uint64
	seqno uint64
}

// installation is a function's live runtime: the unzipped code tree, the
// collaborator reached through the worker pool, and the invocation and
// result logs created in the collaborator's namespace at install time.
type installation struct {
	dir           string
	collab        *workerpool.Collaborator
	pool          *workerpool.Pool
	invocationLog uint64
	leases        *shm.Pool[lease]
}

// ensureInstalled returns the function's properties and installation,
// creating the installation under the serialization lock on first use.
// Install is idempotent: a second caller racing past the fast path
// re-checks under the lock and adopts the winner's installation. The
// returned snapshot is taken under the map lock so a concurrent teardown
// can't swap the install out from under the caller mid-read.
func (m *Manager) ensureInstalled(ctx context.Context, name string) (types.FunctionProperties, *installation, error) {
	m.mu.RLock()
	entry, ok := m.functions[name]
	var props types.FunctionProperties
	var inst *installation
	if ok {
		props, inst = entry.props, entry.install
	}
	m.mu.RUnlock()
	if inst != nil {
		return props, inst, nil
	}

	// Populate the map from the metadata file if needed.
	if _, err := m.Get(name); err != nil {
		return types.FunctionProperties{}, nil, err
	}

	m.serialization.Lock()
	defer m.serialization.Unlock()

	m.mu.RLock()
	entry = m.functions[name]
	if entry != nil {
		props, inst = entry.props, entry.install
	}
	m.mu.RUnlock()
	if entry == nil {
		return types.FunctionProperties{}, nil, errs.NotFound("functions.install", "function not found: "+name)
	}
	if inst != nil {
		return props, inst, nil
	}

	inst, err := m.install(ctx, props)
	if err != nil {
		m.metrics.IncInstallFailure()
		return types.FunctionProperties{}, nil, err
	}
	m.metrics.IncInstallSuccess()

	m.mu.Lock()
	m.functions[name] = &managed{props: props, install: inst}
	m.mu.Unlock()
	return props, inst, nil
}

// install materialises the environment for props: a fresh install
// directory, the unzipped bundle, a spawned collaborator, and the
// invocation and result logs. A failure at any step tears down whatever
// was already created before the error is reported.
func (m *Manager) install(ctx context.Context, props types.FunctionProperties) (inst *installation, err error) {
	dir := filepath.Join(m.cfg.InstallDir, props.FunctionName+"-"+props.CodeSha256)

	// A leftover tree from a crashed process is stale; reinstall fresh.
	if err := os.RemoveAll(dir); err != nil {
		return nil, errs.Service("functions.install", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Service("functions.install", err)
	}

	defer func() {
		if err != nil {
			if inst != nil {
				inst.teardown(m.log)
			} else {
				_ = os.RemoveAll(dir)
			}
			inst = nil
		}
	}()

	zipPath := filepath.Join(m.cfg.ZipsDir, props.CodeSha256+".zip")
	if err := unzipTo(dir, zipPath); err != nil {
		return nil, err
	}

	collab, err := m.spawner.Spawn(ctx, workerpool.CollaboratorConfig{
		InstallDir: dir,
		Handler:    props.Handler,
	})
	if err != nil {
		return nil, err
	}
	m.metrics.IncCollaboratorSpawn()

	pool := workerpool.New(collab, m.cfg.WorkerQueueDepth, m.cfg.WorkerFibres, m.log)
	inst = &installation{dir: dir, collab: collab, pool: pool}

	// Record sizes leave room for the length prefix framing records
	// inside fixed slots, so a payload at exactly the element-size
	// budget still fits.
	invocationLog, err := m.createLog(ctx, pool, uint32(m.cfg.CallWoofElSize+ipc.LengthPrefixSize), uint32(m.cfg.WorkerQueueDepth))
	if err != nil {
		return nil, err
	}
	inst.invocationLog = invocationLog

	leases := make([]lease, 0, m.cfg.ResultWoofCount)
	for i := 0; i < m.cfg.ResultWoofCount; i++ {
		logID, err := m.createLog(ctx, pool, uint32(m.cfg.ResultWoofElSize+ipc.LengthPrefixSize), 1)
		if err != nil {
			return nil, err
		}
		leases = append(leases, lease{logID: logID, seqno: woof.InvalidSeqno})
	}
	inst.leases = shm.NewPool(leases)

	m.log.Info("function installed",
		zap.String("function", props.FunctionName),
		zap.String("dir", dir),
		zap.Int("result_logs", m.cfg.ResultWoofCount))
	return inst, nil
}

func (m *Manager) createLog(ctx context.Context, pool *workerpool.Pool, elementSize, capacity uint32) (uint64, error) {
	res, err := pool.Submit(ctx, &types.Command{
		Tag:        types.CommandWoofCreate,
		WoofCreate: &types.WoofCreateArgs{ElementSize: elementSize, Capacity: capacity},
	})
	if err != nil {
		return 0, err
	}
	if res.LogID == 0 {
		return 0, errs.Service("functions.createLog", fmt.Errorf("collaborator returned zero log id"))
	}
	return res.LogID, nil
}

// teardown releases everything the installation owns: the worker pool
// (which kills the collaborator), then the install directory.
func (inst *installation) teardown(logger *zap.Logger) {
	if inst.pool != nil {
		if err := inst.pool.Close(); err != nil {
			logger.Warn("worker pool close", zap.Error(err))
		}
	} else if inst.collab != nil {
		_ = inst.collab.Kill()
	}
	if err := os.RemoveAll(inst.dir); err != nil {
		logger.Warn("remove install dir", zap.Error(err), zap.String("dir", inst.dir))
	}
}
