package web

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// TLSFiles names the key and certificate used for HTTPS.
type TLSFiles struct {
	KeyPath  string
	CertPath string
}

// Enabled reports whether both files are set.
func (t TLSFiles) Enabled() bool {
	return t.KeyPath != "" && t.CertPath != ""
}

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	tlsFiles TLSFiles
	handlers *Handlers
	logf     func(format string, args ...interface{})

	// shutdownTimeout bounds the wait for running requests on interrupt.
	shutdownTimeout time.Duration
}

const defaultShutdownTimeout = 5 * time.Second

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, handlers *Handlers, tlsFiles TLSFiles) *Server {
	return &Server{
		addr:     addr,
		tlsFiles: tlsFiles,
		handlers: handlers,
		logf:     debug.Info,

		shutdownTimeout: defaultShutdownTimeout,
	}
}

// Scheme returns "https" when TLS is configured, "http" otherwise.
func (s *Server) Scheme() string {
	if s.tlsFiles.Enabled() {
		return "https"
	}
	return "http"
}

// URL returns the base URL the server listens on.
func (s *Server) URL() string {
	return fmt.Sprintf("%s://%s", s.Scheme(), s.addr)
}

// Mux returns an http.Handler with all routes registered. Every path reaches
// the move handler, which rejects anything but "/".
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.handlers)
	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. Request contexts derive from ctx,
// so queued moves are dropped once ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.New(io.Discard, "", 0),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if s.tlsFiles.Enabled() {
		cert, err := tls.LoadX509KeyPair(s.tlsFiles.CertPath, s.tlsFiles.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("load TLS key pair: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	errCh := make(chan error, 1)
	go func() {
		s.logf("Listening on: %s://%s", s.Scheme(), ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if errors.Is(err, context.DeadlineExceeded) {
			debug.Warn("requests still running after %s, closing connections", s.shutdownTimeout)
			_ = srv.Close()
			return nil
		}
		return err
	}
}
