// Package ipc implements the length-prefixed msgpack framing protocol
// used between a function manager and its spawned collaborator worker
// process over stdin/stdout.
package ipc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/woofstack/platform/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - LengthPrefixSize).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the error should terminate the collaborator
// connection outright. Partial and oversized frames leave the stream in
// an unrecoverable state; a bad decode only loses one frame.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError reports whether err is a fatal *FrameError.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder. Wraps the reader with
// bufio.Reader to reduce syscall overhead on unbuffered sources (pipes to
// a child process).
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &FrameDecoder{reader: br}
}

// ReadFrame reads a single frame from the stream and returns its raw
// msgpack-encoded payload.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}

	return payload, nil
}

// DecodeCommand decodes a payload as a Command sent manager→collaborator.
func DecodeCommand(payload []byte) (*types.Command, error) {
	var cmd types.Command
	if err := msgpack.Unmarshal(payload, &cmd); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode command", Err: err}
	}
	return &cmd, nil
}

// DecodeResult decodes a payload as a Result sent collaborator→manager.
func DecodeResult(payload []byte) (*types.Result, error) {
	var res types.Result
	if err := msgpack.Unmarshal(payload, &res); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode result", Err: err}
	}
	return &res, nil
}

// EncodeFrame encodes a payload with a 4-byte big-endian length prefix.
// This is the public encoder counterpart to FrameDecoder.ReadFrame.
func EncodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

// DecodeFrame extracts the payload from a length-prefixed buffer, such as
// a fixed-size log-woof record written via EncodeFrame and read back with
// zero padding after the payload. The inverse of EncodeFrame for
// in-memory buffers rather than streams.
func DecodeFrame(buf []byte) ([]byte, error) {
	if len(buf) < LengthPrefixSize {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "buffer shorter than length prefix"}
	}
	payloadSize := binary.BigEndian.Uint32(buf[:LengthPrefixSize])
	if uint64(payloadSize) > uint64(len(buf)-LengthPrefixSize) {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  fmt.Sprintf("payload size %d exceeds buffer remainder %d", payloadSize, len(buf)-LengthPrefixSize),
		}
	}
	return buf[LengthPrefixSize : LengthPrefixSize+payloadSize], nil
}

// EncodeCommand encodes a Command as a length-prefixed msgpack frame.
func EncodeCommand(cmd *types.Command) ([]byte, error) {
	payload, err := msgpack.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	return EncodeFrame(payload), nil
}

// EncodeResult encodes a Result as a length-prefixed msgpack frame.
func EncodeResult(res *types.Result) ([]byte, error) {
	payload, err := msgpack.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return EncodeFrame(payload), nil
}
