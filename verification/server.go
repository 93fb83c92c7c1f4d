package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/glimte/mmate-pact/contracts"
	"github.com/glimte/mmate-pact/internal/netutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultShutdownTimeout bounds a graceful Close before open connections are cut
const DefaultShutdownTimeout = 5 * time.Second

var errAlreadyStarted = errors.New("proxy server already started")

// ProxyServer exposes a verification handler over HTTP for the lifetime of
// one verification run
type ProxyServer struct {
	handler      http.Handler
	host         string
	port         int
	readyTimeout time.Duration
	shutdown     time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	started  bool
	listener net.Listener
	server   *http.Server
	ready    chan struct{}
	done     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// ServerOption configures the ProxyServer
type ServerOption func(*ProxyServer)

// WithAddress sets the interface and port to bind. Port 0 picks a free port.
func WithAddress(host string, port int) ServerOption {
	return func(s *ProxyServer) {
		s.host = host
		s.port = port
	}
}

// WithReadyTimeout bounds the wait for the listener to accept connections
func WithReadyTimeout(timeout time.Duration) ServerOption {
	return func(s *ProxyServer) {
		s.readyTimeout = timeout
	}
}

// WithShutdownTimeout bounds how long Close waits for in-flight requests
func WithShutdownTimeout(timeout time.Duration) ServerOption {
	return func(s *ProxyServer) {
		s.shutdown = timeout
	}
}

// WithServerLogger sets the logger
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *ProxyServer) {
		s.logger = logger
	}
}

// NewProxyServer creates a proxy that routes every request to handler
func NewProxyServer(handler http.Handler, options ...ServerOption) *ProxyServer {
	s := &ProxyServer{
		handler:      handler,
		host:         "127.0.0.1",
		readyTimeout: DefaultReadyTimeout,
		shutdown:     DefaultShutdownTimeout,
		logger:       slog.Default(),
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Router builds the proxy's route table: every method and path reaches the
// handler, and panics become 500 responses
func Router(handler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/", handler)
	r.Handle("/*", handler)
	return r
}

// Start binds the listener, starts serving and returns once the listener
// accepts connections. A bind failure is returned as *contracts.BindError.
// If ctx ends first, Start returns ctx.Err().
func (s *ProxyServer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errAlreadyStarted
	}
	s.started = true

	addr := netutil.JoinHostPort(s.host, s.port)
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.mu.Unlock()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Error("proxy server failed to bind", "addr", addr, "error", err)
		return &contracts.BindError{Addr: addr, Err: err}
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           Router(s.handler),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}
	server := s.server
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("proxy server stopped unexpectedly", "addr", listener.Addr().String(), "error", err)
		}
	}()

	if err := WaitForReady(ctx, listener.Addr().String(), s.readyTimeout); err != nil {
		s.Close(context.Background())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	close(s.ready)
	s.logger.Info("proxy server listening", "addr", listener.Addr().String())
	return nil
}

// Ready is closed once Start has observed the listener accepting connections
func (s *ProxyServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before a successful bind
func (s *ProxyServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// URL returns the base URL the verifier should call
func (s *ProxyServer) URL() string {
	addr, ok := s.Addr().(*net.TCPAddr)
	if !ok {
		return ""
	}
	host := addr.IP.String()
	if addr.IP.IsUnspecified() {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(addr.Port)))
}

// Close stops the server and releases the port. In-flight requests get until
// ctx ends or the shutdown timeout elapses, whichever is first, before their
// connections are closed. It is safe to call more than once and after a
// failed Start.
func (s *ProxyServer) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.shutdown > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.shutdown)
			defer cancel()
		}

		s.mu.Lock()
		server, listener := s.server, s.listener
		s.mu.Unlock()

		switch {
		case server != nil:
			if err := server.Shutdown(ctx); err != nil {
				s.logger.Warn("graceful shutdown failed, closing connections", "error", err)
				s.closeErr = server.Close()
			}
			<-s.done
		case listener != nil:
			s.closeErr = listener.Close()
		}

		if listener != nil {
			s.logger.Info("proxy server closed", "addr", listener.Addr().String())
		}
	})
	return s.closeErr
}
