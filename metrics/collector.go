// Package metrics provides in-process metrics collection for the
// platform's servers. The Collector accumulates counters for the function
// and object services; it is a leaf package with no internal dependencies.
// Counters are read out as an immutable Snapshot, exposed on each server's
// stats endpoint and printed by woofctl stats.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all collected counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Function service
	InvocationsStarted   int64
	InvocationsCompleted int64
	InvocationsFailed    int64
	InvocationsTimedOut  int64
	EventInvocations     int64
	InstallSuccess       int64
	InstallFailure       int64
	CollaboratorSpawns   int64
	CollaboratorCrashes  int64
	IPCDecodeErrors      int64
	LeasesAcquired       int64
	LeasesReleased       int64

	// Object service
	ObjectsPut     int64
	ObjectsGot     int64
	ObjectsDeleted int64
	BytesWritten   int64
	BytesRead      int64
	ShardsWritten  int64
	LogsRolled     int64

	// Notification engine
	EventsMatched    int64
	EventsDispatched int64
	EventsFailed     int64

	// Dimensions (informational, set at construction)
	Service string
}

// Collector accumulates counters for one server process.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe
// so library code can record metrics unconditionally.
type Collector struct {
	mu sync.Mutex

	invocationsStarted   int64
	invocationsCompleted int64
	invocationsFailed    int64
	invocationsTimedOut  int64
	eventInvocations     int64
	installSuccess       int64
	installFailure       int64
	collaboratorSpawns   int64
	collaboratorCrashes  int64
	ipcDecodeErrors      int64
	leasesAcquired       int64
	leasesReleased       int64

	objectsPut     int64
	objectsGot     int64
	objectsDeleted int64
	bytesWritten   int64
	bytesRead      int64
	shardsWritten  int64
	logsRolled     int64

	eventsMatched    int64
	eventsDispatched int64
	eventsFailed     int64

	service string
}

// NewCollector creates a collector for the named service.
func NewCollector(service string) *Collector {
	return &Collector{service: service}
}

// inc assumes c is non-nil; the exported methods guard the nil receiver
// before taking a field address.
func (c *Collector) inc(field *int64, delta int64) {
	c.mu.Lock()
	*field += delta
	c.mu.Unlock()
}

// IncInvocationStarted records an invocation entering the dispatch path.
func (c *Collector) IncInvocationStarted() {
	if c == nil {
		return
	}
	c.inc(&c.invocationsStarted, 1)
}

// IncInvocationCompleted records a successful RequestResponse invocation.
func (c *Collector) IncInvocationCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.invocationsCompleted, 1)
}

// IncInvocationFailed records an invocation that errored below the HTTP
// boundary.
func (c *Collector) IncInvocationFailed() {
	if c == nil {
		return
	}
	c.inc(&c.invocationsFailed, 1)
}

// IncInvocationTimedOut records an invocation whose result wait expired.
func (c *Collector) IncInvocationTimedOut() {
	if c == nil {
		return
	}
	c.inc(&c.invocationsTimedOut, 1)
}

// IncEventInvocation records a fire-and-forget Event-mode invocation.
func (c *Collector) IncEventInvocation() {
	if c == nil {
		return
	}
	c.inc(&c.eventInvocations, 1)
}

// IncInstallSuccess records a completed function installation.
func (c *Collector) IncInstallSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.installSuccess, 1)
}

// IncInstallFailure records a failed (and torn-down) installation attempt.
func (c *Collector) IncInstallFailure() {
	if c == nil {
		return
	}
	c.inc(&c.installFailure, 1)
}

// IncCollaboratorSpawn records a collaborator worker process launch.
func (c *Collector) IncCollaboratorSpawn() {
	if c == nil {
		return
	}
	c.inc(&c.collaboratorSpawns, 1)
}

// IncCollaboratorCrash records a collaborator exiting while still owned
// by a live installation.
func (c *Collector) IncCollaboratorCrash() {
	if c == nil {
		return
	}
	c.inc(&c.collaboratorCrashes, 1)
}

// IncIPCDecodeError records a malformed frame dropped by the read loop.
func (c *Collector) IncIPCDecodeError() {
	if c == nil {
		return
	}
	c.inc(&c.ipcDecodeErrors, 1)
}

// IncLeaseAcquired records a result-log lease leaving the pool.
func (c *Collector) IncLeaseAcquired() {
	if c == nil {
		return
	}
	c.inc(&c.leasesAcquired, 1)
}

// IncLeaseReleased records a result-log lease returning to the pool.
func (c *Collector) IncLeaseReleased() {
	if c == nil {
		return
	}
	c.inc(&c.leasesReleased, 1)
}

// IncObjectPut records a stored object and its size.
func (c *Collector) IncObjectPut(bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.objectsPut++
	c.bytesWritten += bytes
	c.mu.Unlock()
}

// IncObjectGet records a served object read and its size.
func (c *Collector) IncObjectGet(bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.objectsGot++
	c.bytesRead += bytes
	c.mu.Unlock()
}

// IncObjectDeleted records an object tombstone append.
func (c *Collector) IncObjectDeleted() {
	if c == nil {
		return
	}
	c.inc(&c.objectsDeleted, 1)
}

// IncShardsWritten records shard records appended to storage logs.
func (c *Collector) IncShardsWritten(n int64) {
	if c == nil {
		return
	}
	c.inc(&c.shardsWritten, n)
}

// IncLogRolled records the blob writer rolling onto a fresh storage log.
func (c *Collector) IncLogRolled() {
	if c == nil {
		return
	}
	c.inc(&c.logsRolled, 1)
}

// IncEventMatched records a notification binding matching a bucket event.
func (c *Collector) IncEventMatched() {
	if c == nil {
		return
	}
	c.inc(&c.eventsMatched, 1)
}

// IncEventDispatched records a successfully delivered notification.
func (c *Collector) IncEventDispatched() {
	if c == nil {
		return
	}
	c.inc(&c.eventsDispatched, 1)
}

// IncEventFailed records a notification delivery failure (logged, never
// propagated to the triggering operation).
func (c *Collector) IncEventFailed() {
	if c == nil {
		return
	}
	c.inc(&c.eventsFailed, 1)
}

// Snapshot returns an immutable copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		InvocationsStarted:   c.invocationsStarted,
		InvocationsCompleted: c.invocationsCompleted,
		InvocationsFailed:    c.invocationsFailed,
		InvocationsTimedOut:  c.invocationsTimedOut,
		EventInvocations:     c.eventInvocations,
		InstallSuccess:       c.installSuccess,
		InstallFailure:       c.installFailure,
		CollaboratorSpawns:   c.collaboratorSpawns,
		CollaboratorCrashes:  c.collaboratorCrashes,
		IPCDecodeErrors:      c.ipcDecodeErrors,
		LeasesAcquired:       c.leasesAcquired,
		LeasesReleased:       c.leasesReleased,
		ObjectsPut:           c.objectsPut,
		ObjectsGot:           c.objectsGot,
		ObjectsDeleted:       c.objectsDeleted,
		BytesWritten:         c.bytesWritten,
		BytesRead:            c.bytesRead,
		ShardsWritten:        c.shardsWritten,
		LogsRolled:           c.logsRolled,
		EventsMatched:        c.eventsMatched,
		EventsDispatched:     c.eventsDispatched,
		EventsFailed:         c.eventsFailed,
		Service:              c.service,
	}
}
