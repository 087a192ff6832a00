package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/woofstack/platform/metrics"
)

// statsSource is anything that can snapshot its counters; both services
// expose theirs on /_woofstack/stats.
type statsSource interface {
	Snapshot() metrics.Snapshot
}

func statsHandler(source statsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var snap metrics.Snapshot
		if source != nil {
			snap = source.Snapshot()
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// requestID tags every request with an X-Request-Id, preserving one the
// caller already set.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// Wrap applies the shared middleware stack: request IDs, combined-format
// access logging through the zap logger, and panic recovery.
func Wrap(h http.Handler, logger *zap.Logger) http.Handler {
	accessLog := &zapio.Writer{Log: logger.Named("access"), Level: zapcore.InfoLevel}
	h = handlers.CombinedLoggingHandler(accessLog, h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	return requestID(h)
}

// NewServer builds an http.Server for the wrapped handler.
func NewServer(addr string, h http.Handler, logger *zap.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Wrap(h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run serves srv until ctx is canceled, then shuts it down gracefully
// with a bounded drain.
func Run(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.String("addr", srv.Addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh // ListenAndServe's http.ErrServerClosed
	return nil
}
