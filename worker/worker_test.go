package worker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/woofstack/platform/ipc"
	"github.com/woofstack/platform/types"
	"github.com/woofstack/platform/woof"
	"github.com/woofstack/platform/workerpool"
)

// echoExecutor returns the event payload unchanged.
type echoExecutor struct {
	initDir     string
	initHandler string
}

func (e *echoExecutor) Init(installDir, handler string) error {
	e.initDir = installDir
	e.initHandler = handler
	return nil
}

func (e *echoExecutor) Invoke(payload []byte) ([]byte, error) {
	return payload, nil
}

// startWorker serves a worker over in-memory pipes and attaches a
// Collaborator to it, standing in for the spawned-process transport.
func startWorker(t *testing.T, exec Executor) *workerpool.Collaborator {
	t.Helper()

	cmdR, cmdW := io.Pipe()
	resR, resW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- Serve(cmdR, resW, exec, Options{})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	c, err := workerpool.Attach(ctx, workerpool.CollaboratorConfig{
		InstallDir: t.TempDir(),
		Handler:    "main.handler",
	}, cmdW, resR, nil)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Kill()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("worker serve loop did not exit after Kill")
		}
	})

	return c
}

func TestServe_InitDirHandshake(t *testing.T) {
	exec := &echoExecutor{}
	startWorker(t, exec)

	if exec.initDir == "" {
		t.Error("executor Init not called during handshake")
	}
	if exec.initHandler != "main.handler" {
		t.Errorf("handler = %q, want main.handler", exec.initHandler)
	}
}

func TestServe_WoofCreatePutLatest(t *testing.T) {
	c := startWorker(t, &echoExecutor{})
	ctx := context.Background()

	created, err := c.Send(ctx, &types.Command{
		Tag:        types.CommandWoofCreate,
		WoofCreate: &types.WoofCreateArgs{ElementSize: 1024, Capacity: 8},
	})
	if err != nil {
		t.Fatalf("WoofCreate: %v", err)
	}
	if created.LogID == 0 {
		t.Fatal("WoofCreate returned zero log id")
	}

	latest, err := c.Send(ctx, &types.Command{
		Tag:         types.CommandLatestSeqno,
		LatestSeqno: &types.LatestSeqnoArgs{LogID: created.LogID},
	})
	if err != nil {
		t.Fatalf("LatestSeqno: %v", err)
	}
	if latest.Seqno != woof.InvalidSeqno {
		t.Errorf("empty log latest = %d, want invalid sentinel", latest.Seqno)
	}

	put, err := c.Send(ctx, &types.Command{
		Tag:     types.CommandWoofPut,
		WoofPut: &types.WoofPutArgs{LogID: created.LogID, Data: []byte("hello")},
	})
	if err != nil {
		t.Fatalf("WoofPut: %v", err)
	}
	if put.Seqno != 0 {
		t.Errorf("first put seqno = %d, want 0", put.Seqno)
	}

	latest, err = c.Send(ctx, &types.Command{
		Tag:         types.CommandLatestSeqno,
		LatestSeqno: &types.LatestSeqnoArgs{LogID: created.LogID},
	})
	if err != nil {
		t.Fatalf("LatestSeqno after put: %v", err)
	}
	if latest.Seqno != 0 {
		t.Errorf("latest after one put = %d, want 0", latest.Seqno)
	}
}

func TestServe_InvokeAndWaitForResult(t *testing.T) {
	c := startWorker(t, &echoExecutor{})
	ctx := context.Background()

	mkLog := func(elSize, capacity uint32) uint64 {
		t.Helper()
		res, err := c.Send(ctx, &types.Command{
			Tag:        types.CommandWoofCreate,
			WoofCreate: &types.WoofCreateArgs{ElementSize: elSize, Capacity: capacity},
		})
		if err != nil {
			t.Fatalf("WoofCreate: %v", err)
		}
		return res.LogID
	}

	invocationLog := mkLog(4096, 16)
	resultLog := mkLog(4096, 1)

	payload := []byte(`{"x":1}`)
	inv, err := c.Send(ctx, &types.Command{
		Tag: types.CommandInvoke,
		Invoke: &types.InvokeArgs{
			Payload:         payload,
			CallRecord:      []byte("metadata\x00payload\x00"),
			InvocationLogID: invocationLog,
			ResultLogID:     resultLog,
		},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if inv.Seqno != 0 {
		t.Errorf("call record seqno = %d, want 0", inv.Seqno)
	}

	wait, err := c.Send(ctx, &types.Command{
		Tag: types.CommandWaitForResult,
		WaitForResult: &types.WaitForResultArgs{
			ResultLogID: resultLog,
			CachedSeqno: woof.InvalidSeqno,
			TimeoutMs:   5000,
		},
	})
	if err != nil {
		t.Fatalf("WaitForResult: %v", err)
	}
	if wait.Seqno == woof.InvalidSeqno {
		t.Fatal("WaitForResult timed out, want echoed result")
	}
	if string(wait.Payload) != string(payload) {
		t.Errorf("result payload = %q, want %q", wait.Payload, payload)
	}
}

func TestServe_WaitForResultTimeout(t *testing.T) {
	c := startWorker(t, &echoExecutor{})
	ctx := context.Background()

	created, err := c.Send(ctx, &types.Command{
		Tag:        types.CommandWoofCreate,
		WoofCreate: &types.WoofCreateArgs{ElementSize: 256, Capacity: 1},
	})
	if err != nil {
		t.Fatalf("WoofCreate: %v", err)
	}

	res, err := c.Send(ctx, &types.Command{
		Tag: types.CommandWaitForResult,
		WaitForResult: &types.WaitForResultArgs{
			ResultLogID: created.LogID,
			CachedSeqno: woof.InvalidSeqno,
			TimeoutMs:   50,
		},
	})
	if err != nil {
		t.Fatalf("WaitForResult: %v", err)
	}
	if res.Seqno != woof.InvalidSeqno {
		t.Errorf("timeout seqno = %d, want invalid sentinel", res.Seqno)
	}
	if len(res.Payload) != 0 {
		t.Errorf("timeout carried payload %q", res.Payload)
	}
}

func TestServe_CommandBeforeInit(t *testing.T) {
	cmdR, cmdW := io.Pipe()
	resR, resW := io.Pipe()

	go func() {
		_ = Serve(cmdR, resW, &echoExecutor{}, Options{})
	}()
	t.Cleanup(func() { _ = cmdW.Close() })

	// Bypass Attach (which would perform the handshake) and send a raw
	// frame against the uninitialized worker.
	frame, err := ipc.EncodeCommand(&types.Command{
		RequestID:   "pre-init",
		Tag:         types.CommandLatestSeqno,
		LatestSeqno: &types.LatestSeqnoArgs{LogID: 1},
	})
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	if _, err := cmdW.Write(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	payload, err := ipc.NewFrameDecoder(resR).ReadFrame()
	if err != nil {
		t.Fatalf("read reply frame: %v", err)
	}
	res, err := ipc.DecodeResult(payload)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if res.Err == "" {
		t.Fatal("expected error reply for command before init")
	}
}
