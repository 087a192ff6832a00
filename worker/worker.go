// Package worker implements the collaborator side of the function
// platform: the command loop a spawned woof-worker process runs against
// its manager's stdin/stdout frames. The worker owns the log-woof store
// rooted in its function's install directory — invocation and result logs
// live here, in the worker's namespace, and the manager only ever reaches
// them through the command protocol.
//
// The loop itself never executes handler code; commands are pushed onto a
// bounded queue consumed by a small fixed set of fibre goroutines, so a
// slow handler or a long result poll never stalls command intake beyond
// the queue's backpressure.
package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/woofstack/platform/errs"
	"github.com/woofstack/platform/ipc"
	"github.com/woofstack/platform/shm"
	"github.com/woofstack/platform/types"
	"github.com/woofstack/platform/woof"
)

// DefaultQueueDepth bounds how many commands may be pending execution.
const DefaultQueueDepth = 16

// DefaultFibres is the number of goroutines executing queued commands.
const DefaultFibres = 4

// DefaultPollInitial is waitForResult's starting poll interval.
const DefaultPollInitial = 4 * time.Millisecond

// DefaultPollMax caps waitForResult's exponential backoff.
const DefaultPollMax = 256 * time.Millisecond

// DefaultWaitTimeout bounds a waitForResult with no explicit timeout.
const DefaultWaitTimeout = 30 * time.Second

// Options tunes a worker's queue, fibre count, and result polling.
// Zero values select the defaults above.
type Options struct {
	QueueDepth  int
	Fibres      int
	PollInitial time.Duration
	PollMax     time.Duration
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueDepth <= 0 {
		o.QueueDepth = DefaultQueueDepth
	}
	if o.Fibres <= 0 {
		o.Fibres = DefaultFibres
	}
	if o.PollInitial <= 0 {
		o.PollInitial = DefaultPollInitial
	}
	if o.PollMax <= 0 {
		o.PollMax = DefaultPollMax
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Worker drives one function's command loop. Create with Serve; the
// struct exists so handlers can share the store, executor, and write
// path.
type Worker struct {
	exec Executor
	opts Options
	log  *zap.Logger

	writeMu sync.Mutex
	out     io.Writer

	// store is nil until the InitDir handshake opens it in the install
	// directory. Commands arriving before that are rejected. Guarded by
	// storeMu: the read loop writes it once, fibres read it.
	storeMu sync.RWMutex
	store   *woof.Store
}

func (wk *Worker) getStore() *woof.Store {
	wk.storeMu.RLock()
	defer wk.storeMu.RUnlock()
	return wk.store
}

func (wk *Worker) setStore(s *woof.Store) {
	wk.storeMu.Lock()
	wk.store = s
	wk.storeMu.Unlock()
}

// Serve runs the command loop until r reaches EOF (the manager closed our
// stdin, the orderly shutdown signal) or the stream becomes unreadable.
// Blocks for the life of the worker.
func Serve(r io.Reader, w io.Writer, exec Executor, opts Options) error {
	opts = opts.withDefaults()
	wk := &Worker{exec: exec, opts: opts, log: opts.Logger, out: w}

	queue := shm.NewBoundedQueue[func()](opts.QueueDepth)
	var wg sync.WaitGroup
	for i := 0; i < opts.Fibres; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue.Chan() {
				task()
			}
		}()
	}

	dec := ipc.NewFrameDecoder(r)
	var loopErr error
	for {
		payload, err := dec.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				loopErr = err
			}
			break
		}

		cmd, err := ipc.DecodeCommand(payload)
		if err != nil {
			wk.log.Warn("dropping undecodable command frame", zap.Error(err))
			continue
		}

		// InitDir is the handshake; it must complete before any queued
		// command runs, so it is handled inline rather than queued.
		if cmd.Tag == types.CommandInitDir {
			wk.handleInitDir(cmd)
			continue
		}

		queue.Push(func() { wk.dispatch(cmd) })
	}

	queue.Close()
	wg.Wait()
	if store := wk.getStore(); store != nil {
		_ = store.Close()
	}
	// Closing the result stream (when it is closable, as the in-process
	// pipe transport is) lets the far side's read loop observe shutdown.
	if closer, ok := w.(io.Closer); ok {
		_ = closer.Close()
	}
	return loopErr
}

func (wk *Worker) reply(res *types.Result) {
	frame, err := ipc.EncodeResult(res)
	if err != nil {
		wk.log.Error("encode result", zap.Error(err))
		return
	}
	wk.writeMu.Lock()
	_, err = wk.out.Write(frame)
	wk.writeMu.Unlock()
	if err != nil {
		wk.log.Error("write result", zap.Error(err))
	}
}

func (wk *Worker) replyErr(cmd *types.Command, err error) {
	wk.reply(&types.Result{RequestID: cmd.RequestID, Tag: cmd.Tag, Err: err.Error()})
}

func (wk *Worker) handleInitDir(cmd *types.Command) {
	args := cmd.InitDir
	if args == nil {
		wk.replyErr(cmd, errors.New("init_dir args missing"))
		return
	}

	store, err := woof.Open(args.InstallDir)
	if err != nil {
		wk.replyErr(cmd, err)
		return
	}
	if err := wk.exec.Init(args.InstallDir, args.Handler); err != nil {
		_ = store.Close()
		wk.replyErr(cmd, err)
		return
	}

	wk.setStore(store)
	wk.log.Info("worker initialized",
		zap.String("install_dir", args.InstallDir),
		zap.String("handler", args.Handler))
	wk.reply(&types.Result{RequestID: cmd.RequestID, Tag: cmd.Tag})
}

func (wk *Worker) dispatch(cmd *types.Command) {
	if wk.getStore() == nil {
		wk.replyErr(cmd, errors.New("worker not initialized"))
		return
	}

	switch cmd.Tag {
	case types.CommandWoofCreate:
		wk.handleWoofCreate(cmd)
	case types.CommandWoofPut:
		wk.handleWoofPut(cmd)
	case types.CommandLatestSeqno:
		wk.handleLatestSeqno(cmd)
	case types.CommandWaitForResult:
		wk.handleWaitForResult(cmd)
	case types.CommandInvoke:
		wk.handleInvoke(cmd)
	default:
		wk.replyErr(cmd, fmt.Errorf("unknown command tag %d", cmd.Tag))
	}
}

func (wk *Worker) handleWoofCreate(cmd *types.Command) {
	args := cmd.WoofCreate
	if args == nil {
		wk.replyErr(cmd, errors.New("woof_create args missing"))
		return
	}
	logID, err := wk.getStore().Create(args.ElementSize, args.Capacity)
	if err != nil {
		wk.replyErr(cmd, err)
		return
	}
	wk.reply(&types.Result{RequestID: cmd.RequestID, Tag: cmd.Tag, LogID: logID})
}

func (wk *Worker) handleWoofPut(cmd *types.Command) {
	args := cmd.WoofPut
	if args == nil {
		wk.replyErr(cmd, errors.New("woof_put args missing"))
		return
	}
	seqno, err := wk.getStore().Append(args.LogID, ipc.EncodeFrame(args.Data))
	if err != nil {
		wk.replyErr(cmd, err)
		return
	}
	wk.reply(&types.Result{RequestID: cmd.RequestID, Tag: cmd.Tag, Seqno: seqno})
}

func (wk *Worker) handleLatestSeqno(cmd *types.Command) {
	args := cmd.LatestSeqno
	if args == nil {
		wk.replyErr(cmd, errors.New("latest_seqno args missing"))
		return
	}
	seqno, err := wk.getStore().LatestSeqno(args.LogID)
	if err != nil {
		wk.replyErr(cmd, err)
		return
	}
	wk.reply(&types.Result{RequestID: cmd.RequestID, Tag: cmd.Tag, Seqno: seqno})
}

// handleWaitForResult polls the result log with exponential backoff until
// a record newer than the caller's cached seqno appears or the timeout
// elapses. A timeout replies with the invalid seqno sentinel and no
// error; real failures (unknown log, unreadable record) reply with Err.
func (wk *Worker) handleWaitForResult(cmd *types.Command) {
	args := cmd.WaitForResult
	if args == nil {
		wk.replyErr(cmd, errors.New("wait_for_result args missing"))
		return
	}

	timeout := DefaultWaitTimeout
	if args.TimeoutMs > 0 {
		timeout = time.Duration(args.TimeoutMs) * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	interval := wk.opts.PollInitial
	for {
		latest, err := wk.getStore().LatestSeqno(args.ResultLogID)
		if err != nil {
			wk.replyErr(cmd, err)
			return
		}

		if latest != woof.InvalidSeqno &&
			(args.CachedSeqno == woof.InvalidSeqno || latest > args.CachedSeqno) {
			raw, err := wk.getStore().Get(args.ResultLogID, latest)
			if err != nil {
				wk.replyErr(cmd, err)
				return
			}
			payload, err := ipc.DecodeFrame(raw)
			if err != nil {
				wk.replyErr(cmd, err)
				return
			}
			wk.reply(&types.Result{
				RequestID: cmd.RequestID,
				Tag:       cmd.Tag,
				Seqno:     latest,
				Payload:   payload,
			})
			return
		}

		if time.Now().After(deadline) {
			wk.reply(&types.Result{RequestID: cmd.RequestID, Tag: cmd.Tag, Seqno: woof.InvalidSeqno})
			return
		}

		time.Sleep(interval)
		interval *= 2
		if interval > wk.opts.PollMax {
			interval = wk.opts.PollMax
		}
	}
}

// handleInvoke appends the call record to the invocation log, replies as
// soon as the append lands, then runs the handler on this fibre and
// appends its response to the result log. The early reply is what makes
// the trigger fire-and-forget: the manager's put returns while the
// handler is still running, and the result is observed through
// waitForResult on the result log.
func (wk *Worker) handleInvoke(cmd *types.Command) {
	args := cmd.Invoke
	if args == nil {
		wk.replyErr(cmd, errors.New("invoke args missing"))
		return
	}

	var callSeqno uint64
	if args.InvocationLogID != 0 {
		seqno, err := wk.getStore().Append(args.InvocationLogID, ipc.EncodeFrame(args.CallRecord))
		if err != nil {
			wk.replyErr(cmd, err)
			return
		}
		callSeqno = seqno
	}
	wk.reply(&types.Result{RequestID: cmd.RequestID, Tag: cmd.Tag, Seqno: callSeqno})

	out, err := wk.exec.Invoke(args.Payload)
	if err != nil {
		wk.log.Warn("handler execution failed", zap.Error(err))
		out = encodeHandlerError(err)
	}

	if args.ResultLogID == 0 {
		return
	}
	if _, err := wk.getStore().Append(args.ResultLogID, ipc.EncodeFrame(out)); err != nil {
		// The waiter will time out; nothing else can be done from here.
		wk.log.Error("append handler result", zap.Error(err),
			zap.Uint64("result_log", args.ResultLogID))
	}
}

// encodeHandlerError renders a handler failure as the JSON body the
// caller receives in place of a result.
func encodeHandlerError(err error) []byte {
	body, marshalErr := json.Marshal(map[string]string{
		"errorMessage": err.Error(),
		"errorType":    errs.KindOf(err).String(),
	})
	if marshalErr != nil {
		return []byte(`{"errorMessage":"handler failed"}`)
	}
	return body
}
