package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/types"
	"github.com/woofstack/platform/woof"
)

// callMetadata is the envelope written ahead of the payload in every
// call record: which function is being invoked, where its response
// should land, and the function's full metadata for the handler's
// benefit.
type callMetadata struct {
	Function   string                   `json:"function"`
	ResultWoof string                   `json:"result_woof,omitempty"`
	Metadata   types.FunctionProperties `json:"metadata"`
}

// Invoke runs the named function with the given JSON payload, installing
// it first if needed.
//
// RequestResponse mode acquires a result-log lease, triggers the handler,
// waits for the response record, and returns its bytes. Event mode
// triggers the handler with no result log and returns immediately after
// the call record lands.
func (m *Manager) Invoke(ctx context.Context, name string, payload []byte, mode types.InvocationMode) ([]byte, error) {
	m.metrics.IncInvocationStarted()

	props, inst, err := m.ensureInstalled(ctx, name)
	if err != nil {
		m.metrics.IncInvocationFailed()
		return nil, err
	}

	var body []byte
	if mode == types.InvocationEvent {
		err = m.invokeEvent(ctx, props, inst, payload)
	} else {
		body, err = m.invokeRequestResponse(ctx, props, inst, payload)
	}
	switch {
	case err == nil:
		m.metrics.IncInvocationCompleted()
	case errs.KindOf(err) == errs.Timeout:
		m.metrics.IncInvocationTimedOut()
	default:
		m.metrics.IncInvocationFailed()
	}
	return body, err
}

func (m *Manager) invokeEvent(ctx context.Context, props types.FunctionProperties, inst *installation, payload []byte) error {
	m.metrics.IncEventInvocation()

	callRecord, err := m.composeCallRecord(props, payload, 0)
	if err != nil {
		return err
	}

	_, err = inst.pool.Submit(ctx, &types.Command{
		Tag: types.CommandInvoke,
		Invoke: &types.InvokeArgs{
			Payload:         payload,
			CallRecord:      callRecord,
			InvocationLogID: inst.invocationLog,
			ResultLogID:     0,
		},
	})
	return err
}

func (m *Manager) invokeRequestResponse(ctx context.Context, props types.FunctionProperties, inst *installation, payload []byte) ([]byte, error) {
	timeout := m.invokeTimeout(props)

	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	idx, held, err := inst.leases.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	m.metrics.IncLeaseAcquired()

	// The lease goes back in every path. Its seqno is refreshed from the
	// worker before release wherever it may have advanced, so a late
	// result posted after a timeout can't satisfy the next holder's
	// wait.
	releaseSeqno := held.seqno
	defer func() {
		inst.leases.Release(idx, lease{logID: held.logID, seqno: releaseSeqno})
		m.metrics.IncLeaseReleased()
	}()

	callRecord, err := m.composeCallRecord(props, payload, held.logID)
	if err != nil {
		return nil, err
	}

	// Take the seqno the worker observes over the cached one: another
	// invocation may have advanced the log since this lease last held
	// it.
	observed, err := m.latestSeqno(ctx, inst, held.logID)
	if err != nil {
		return nil, err
	}
	cached := maxSeqno(held.seqno, observed)
	releaseSeqno = cached

	if _, err := inst.pool.Submit(ctx, &types.Command{
		Tag: types.CommandInvoke,
		Invoke: &types.InvokeArgs{
			Payload:         payload,
			CallRecord:      callRecord,
			InvocationLogID: inst.invocationLog,
			ResultLogID:     held.logID,
		},
	}); err != nil {
		return nil, err
	}

	res, err := inst.pool.Submit(ctx, &types.Command{
		Tag: types.CommandWaitForResult,
		WaitForResult: &types.WaitForResultArgs{
			ResultLogID: held.logID,
			CachedSeqno: cached,
			TimeoutMs:   timeout.Milliseconds(),
		},
	})
	if err != nil {
		releaseSeqno = m.refreshSeqno(inst, held.logID, cached)
		return nil, err
	}
	if res.Seqno == woof.InvalidSeqno {
		releaseSeqno = m.refreshSeqno(inst, held.logID, cached)
		return nil, errs.TimedOut("functions.Invoke", "function timed out")
	}

	releaseSeqno = res.Seqno
	return res.Payload, nil
}

// composeCallRecord builds `metadata_json \0 payload_json \0` and
// enforces the call-record size budget.
func (m *Manager) composeCallRecord(props types.FunctionProperties, payload []byte, resultLogID uint64) ([]byte, error) {
	meta := callMetadata{Function: props.FunctionName, Metadata: props}
	if resultLogID != 0 {
		meta.ResultWoof = fmt.Sprintf("%016x", resultLogID)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, errs.Service("functions.Invoke", err)
	}

	if len(metaJSON)+len(payload)+2 > m.cfg.CallWoofElSize {
		return nil, errs.TooLarge("functions.Invoke",
			fmt.Sprintf("request of %d bytes exceeds the %d byte invocation budget",
				len(metaJSON)+len(payload)+2, m.cfg.CallWoofElSize))
	}

	record := make([]byte, 0, len(metaJSON)+len(payload)+2)
	record = append(record, metaJSON...)
	record = append(record, 0)
	record = append(record, payload...)
	record = append(record, 0)
	return record, nil
}

func (m *Manager) latestSeqno(ctx context.Context, inst *installation, logID uint64) (uint64, error) {
	res, err := inst.pool.Submit(ctx, &types.Command{
		Tag:         types.CommandLatestSeqno,
		LatestSeqno: &types.LatestSeqnoArgs{LogID: logID},
	})
	if err != nil {
		return 0, err
	}
	return res.Seqno, nil
}

// refreshSeqno best-effort re-reads the log's latest seqno so a lease
// released after a failed wait reflects any late result. Uses its own
// short deadline because the invocation's context is usually already
// expired here.
func (m *Manager) refreshSeqno(inst *installation, logID uint64, cached uint64) uint64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	observed, err := m.latestSeqno(ctx, inst, logID)
	if err != nil {
		m.log.Warn("refresh lease seqno", zap.Error(err), zap.Uint64("log", logID))
		return cached
	}
	return maxSeqno(cached, observed)
}

func (m *Manager) invokeTimeout(props types.FunctionProperties) time.Duration {
	timeout := m.cfg.InvokeTimeout
	if props.Timeout > 0 {
		if t := time.Duration(props.Timeout) * time.Second; t < timeout {
			timeout = t
		}
	}
	return timeout
}

// maxSeqno treats the invalid sentinel as "no records", not as the
// numeric maximum it happens to encode to.
func maxSeqno(a, b uint64) uint64 {
	if a == woof.InvalidSeqno {
		return b
	}
	if b == woof.InvalidSeqno {
		return a
	}
	if a > b {
		return a
	}
	return b
}
