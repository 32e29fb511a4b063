// Package server exposes the supervisor over HTTP: a WebSocket status
// stream, a small JSON API and the embedded status page.
package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/soar/padmouse/internal/hub"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

// IndexFile is the page served at "/".
const IndexFile = "index.html"

type Options struct {
	Hub         *hub.Hub
	Broadcaster *hub.Broadcaster
	Controller  hub.Controller
	Save        hub.Saver // nil disables saving
	Page        fs.FS     // holds IndexFile; nil serves no page
	Addr        string
	Logger      *slog.Logger
}

type Server struct {
	opts       Options
	logger     *slog.Logger
	page       []byte
	httpServer *http.Server
}

// New prepares the server and minifies the status page.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:   opts,
		logger: logger.With("component", "server"),
	}
	if opts.Page != nil {
		raw, err := fs.ReadFile(opts.Page, IndexFile)
		if err != nil {
			return nil, fmt.Errorf("reading status page: %w", err)
		}
		page, err := minifyPage(raw)
		if err != nil {
			return nil, fmt.Errorf("minifying status page: %w", err)
		}
		s.logger.Debug("status page minified", "from", len(raw), "to", len(page))
		s.page = page
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func minifyPage(raw []byte) ([]byte, error) {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return m.Bytes("text/html", raw)
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("GET /api/buttons", s.handleButtons)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)
	mux.HandleFunc("PUT /api/enabled", s.handleEnabled)
	mux.HandleFunc("PUT /api/device", s.handleSelect)

	if s.page != nil {
		mux.HandleFunc("GET /{$}", s.handlePage)
	}
	return mux
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. After Shutdown it returns
// http.ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
