package worker

// Executor runs the function's handler code. Exactly one executor lives
// per worker process; Init is called once during the InitDir handshake,
// before any Invoke.
//
// Implementations need not be concurrency-safe for Invoke — callers that
// share one executor across fibres must serialize (LuaExecutor does this
// itself, since a Lua state is single-threaded).
type Executor interface {
	// Init prepares the executor inside the function's install directory.
	// handler identifies the entry point as "pkg.func".
	Init(installDir, handler string) error

	// Invoke runs the handler with the given JSON event payload and
	// returns the handler's JSON response.
	Invoke(payload []byte) ([]byte, error)
}
