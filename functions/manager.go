// Package functions implements the function manager: the control-plane
// state behind the Lambda-style HTTP surface. It owns function metadata
// (persisted one JSON file per function), code bundles (stored by content
// hash), and the per-function installations — the unzipped code tree, the
// spawned collaborator worker, and the pre-created invocation and result
// logs reached through the worker's command protocol.
package functions

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/metrics"
	"github.com/woofstack/platform/types"
)

// Config holds the manager's directories and invocation tunables.
type Config struct {
	// MetadataDir holds one <name>.metadata.json per function.
	MetadataDir string
	// ZipsDir holds raw code bundles keyed by content hash.
	ZipsDir string
	// InstallDir holds one <name>-<sha256> tree per installation.
	InstallDir string

	// WorkerQueueDepth bounds each installation's job queue.
	WorkerQueueDepth int
	// WorkerFibres is the number of dispatch fibres per installation.
	WorkerFibres int
	// ResultWoofCount is the number of pre-created result logs (and
	// therefore the number of concurrent RequestResponse invocations)
	// per installation.
	ResultWoofCount int
	// CallWoofElSize bounds one invocation's metadata + payload bytes.
	CallWoofElSize int
	// ResultWoofElSize bounds one invocation's response bytes.
	ResultWoofElSize int
	// InvokeTimeout bounds a RequestResponse invocation end to end.
	InvokeTimeout time.Duration
	// DefaultFunctionTimeout seeds FunctionProperties.Timeout (seconds)
	// when a create request doesn't set one.
	DefaultFunctionTimeout int
}

func (c Config) withDefaults() Config {
	if c.WorkerQueueDepth <= 0 {
		c.WorkerQueueDepth = 16
	}
	if c.WorkerFibres <= 0 {
		c.WorkerFibres = 4
	}
	if c.ResultWoofCount <= 0 {
		c.ResultWoofCount = 8
	}
	if c.CallWoofElSize <= 0 {
		c.CallWoofElSize = 16 * 1024
	}
	if c.ResultWoofElSize <= 0 {
		c.ResultWoofElSize = c.CallWoofElSize
	}
	if c.InvokeTimeout <= 0 {
		c.InvokeTimeout = 30 * time.Second
	}
	if c.DefaultFunctionTimeout <= 0 {
		c.DefaultFunctionTimeout = int(c.InvokeTimeout / time.Second)
	}
	return c
}

// managed pairs a function's persisted properties with its runtime
// installation, nil until the first invocation (or an eager Install).
type managed struct {
	props   types.FunctionProperties
	install *installation
}

// Manager owns the set of functions. The functions map is guarded by a
// fine-grained RWMutex; long-running filesystem work (create, updateCode,
// install) is additionally serialised by a coarse lock so two uploads
// never interleave their disk writes.
type Manager struct {
	cfg     Config
	spawner Spawner
	log     *zap.Logger
	metrics *metrics.Collector

	mu        sync.RWMutex
	functions map[string]*managed

	serialization sync.Mutex
}

// NewManager creates a Manager. spawner may not be nil; logger and
// collector may be nil for callers that don't need them.
func NewManager(cfg Config, spawner Spawner, logger *zap.Logger, collector *metrics.Collector) (*Manager, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, dir := range []string{cfg.MetadataDir, cfg.ZipsDir, cfg.InstallDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Service("functions.NewManager", err)
		}
	}

	return &Manager{
		cfg:       cfg,
		spawner:   spawner,
		log:       logger,
		metrics:   collector,
		functions: make(map[string]*managed),
	}, nil
}

// CreateRequest carries a create/update's caller-supplied fields.
type CreateRequest struct {
	Name        string
	Handler     string
	Description string
	Timeout     int // seconds; 0 selects the default
	ZipData     []byte
}

// Create validates and registers a new function, materialises its code
// bundle, and persists its metadata. The installation is created lazily
// on first invocation.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (types.FunctionProperties, error) {
	if err := validateRequest(req); err != nil {
		return types.FunctionProperties{}, err
	}

	m.serialization.Lock()
	defer m.serialization.Unlock()

	if _, err := m.Get(req.Name); err == nil {
		return types.FunctionProperties{}, errs.Conflict("functions.Create", "function already exists: "+req.Name)
	}

	props, err := m.storeCode(req)
	if err != nil {
		return types.FunctionProperties{}, err
	}

	m.mu.Lock()
	m.functions[req.Name] = &managed{props: props}
	m.mu.Unlock()

	m.log.Info("function created",
		zap.String("function", req.Name),
		zap.String("sha256", props.CodeSha256))
	return props, nil
}

// UpdateCode replaces an existing function's bundle. Any live
// installation is torn down; the next invocation reinstalls from the new
// code.
func (m *Manager) UpdateCode(ctx context.Context, name string, zipData []byte) (types.FunctionProperties, error) {
	if len(zipData) == 0 {
		return types.FunctionProperties{}, errs.Invalid("functions.UpdateCode", "empty zip payload")
	}

	m.serialization.Lock()
	defer m.serialization.Unlock()

	current, err := m.Get(name)
	if err != nil {
		return types.FunctionProperties{}, err
	}

	props, err := m.storeCode(CreateRequest{
		Name:        name,
		Handler:     current.Handler,
		Description: current.Description,
		Timeout:     current.Timeout,
		ZipData:     zipData,
	})
	if err != nil {
		return types.FunctionProperties{}, err
	}

	m.mu.Lock()
	entry := m.functions[name]
	oldInstall := entry.install
	m.functions[name] = &managed{props: props}
	m.mu.Unlock()

	if oldInstall != nil {
		oldInstall.teardown(m.log)
	}

	m.log.Info("function code updated",
		zap.String("function", name),
		zap.String("sha256", props.CodeSha256))
	return props, nil
}

// Delete removes the function's metadata, drops it from the map, and
// cascades into installation teardown.
func (m *Manager) Delete(name string) error {
	if _, err := m.Get(name); err != nil {
		return err
	}

	if err := os.Remove(m.metadataPath(name)); err != nil && !os.IsNotExist(err) {
		return errs.Service("functions.Delete", err)
	}

	m.mu.Lock()
	entry := m.functions[name]
	delete(m.functions, name)
	m.mu.Unlock()

	if entry != nil && entry.install != nil {
		entry.install.teardown(m.log)
	}

	m.log.Info("function deleted", zap.String("function", name))
	return nil
}

// Get returns a function's properties, lazily loading its metadata file
// if the in-memory map doesn't have it (the file is the authoritative
// record across restarts).
func (m *Manager) Get(name string) (types.FunctionProperties, error) {
	m.mu.RLock()
	entry, ok := m.functions[name]
	m.mu.RUnlock()
	if ok {
		return entry.props, nil
	}

	props, err := m.loadMetadata(name)
	if err != nil {
		return types.FunctionProperties{}, err
	}

	m.mu.Lock()
	if existing, ok := m.functions[name]; ok {
		props = existing.props
	} else {
		m.functions[name] = &managed{props: props}
	}
	m.mu.Unlock()
	return props, nil
}

// List returns the properties of every known function, including ones
// only present as metadata files from an earlier process.
func (m *Manager) List() ([]types.FunctionProperties, error) {
	entries, err := os.ReadDir(m.cfg.MetadataDir)
	if err != nil {
		return nil, errs.Service("functions.List", err)
	}

	var out []types.FunctionProperties
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), metadataSuffix)
		if !ok || name == "" {
			continue
		}
		props, err := m.Get(name)
		if err != nil {
			continue
		}
		out = append(out, props)
	}
	return out, nil
}

// Shutdown tears down every live installation. In-flight invocations are
// abandoned, matching SIGINT semantics.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	installs := make([]*installation, 0, len(m.functions))
	for _, entry := range m.functions {
		if entry.install != nil {
			installs = append(installs, entry.install)
			entry.install = nil
		}
	}
	m.mu.Unlock()

	for _, inst := range installs {
		inst.teardown(m.log)
	}
}

// Metrics exposes the manager's collector (may be nil).
func (m *Manager) Metrics() *metrics.Collector {
	return m.metrics
}

func validateRequest(req CreateRequest) error {
	if !types.ValidFunctionName(req.Name) {
		return errs.Invalid("functions.Create", "invalid function name: "+req.Name)
	}
	if !types.ValidHandler(req.Handler) {
		return errs.Invalid("functions.Create", "handler must be of the form pkg.func: "+req.Handler)
	}
	if len(req.ZipData) == 0 {
		return errs.Invalid("functions.Create", "empty zip payload")
	}
	return nil
}

// storeCode materialises the bundle and writes metadata; shared by
// Create and UpdateCode. Callers hold the serialization lock.
func (m *Manager) storeCode(req CreateRequest) (types.FunctionProperties, error) {
	sha := sha256Hex(req.ZipData)
	if _, err := materializeZip(m.cfg.ZipsDir, req.ZipData, sha); err != nil {
		return types.FunctionProperties{}, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.cfg.DefaultFunctionTimeout
	}
	if ceiling := int(m.cfg.InvokeTimeout / time.Second); timeout > ceiling {
		timeout = ceiling
	}

	props := types.FunctionProperties{
		FunctionName: req.Name,
		FunctionArn:  types.FunctionArn(req.Name),
		Handler:      req.Handler,
		Description:  req.Description,
		Timeout:      timeout,
		CodeSha256:   sha,
		CodeSize:     int64(len(req.ZipData)),
		LastModified: time.Now().UTC(),
	}

	if err := m.writeMetadata(props); err != nil {
		return types.FunctionProperties{}, err
	}
	return props, nil
}

const metadataSuffix = ".metadata.json"

func (m *Manager) metadataPath(name string) string {
	return filepath.Join(m.cfg.MetadataDir, name+metadataSuffix)
}

func (m *Manager) writeMetadata(props types.FunctionProperties) error {
	data, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return errs.Service("functions.writeMetadata", err)
	}

	path := m.metadataPath(props.FunctionName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.Service("functions.writeMetadata", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Service("functions.writeMetadata", err)
	}
	return nil
}

func (m *Manager) loadMetadata(name string) (types.FunctionProperties, error) {
	data, err := os.ReadFile(m.metadataPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return types.FunctionProperties{}, errs.NotFound("functions.Get", "function not found: "+name)
		}
		return types.FunctionProperties{}, errs.Service("functions.Get", err)
	}

	var props types.FunctionProperties
	if err := json.Unmarshal(data, &props); err != nil {
		return types.FunctionProperties{}, errs.Service("functions.Get", err)
	}
	return props, nil
}
