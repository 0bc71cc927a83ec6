// Package httpapp exposes the provisioning and synchronization API over HTTP.
package httpapp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

// EchoServer is the HTTP server wrapper. It owns the http.Server so callers
// get a single place to start and drain the listener.
type EchoServer struct {
	h   *Handlers
	e   *echo.Echo
	srv *http.Server
}

// NewEchoServer creates a new HTTP server around the given handlers.
func NewEchoServer(h *Handlers) *EchoServer {
	es := &EchoServer{h: h, e: echo.New()}
	es.e.Use(middleware.Recover())
	es.registerRoutes()
	return es
}

func (es *EchoServer) registerRoutes() {
	es.e.GET("/healthz", es.h.HandleHealthz)

	api := es.e.Group("/api")
	api.POST("/connectors", es.h.HandleCreateConnector)
	api.GET("/connectors", es.h.HandleListConnectors)
	api.GET("/connectors/:id", es.h.HandleGetConnector)
	api.GET("/companies/:id/connectors", es.h.HandleListCompanyConnectors)
	api.POST("/sync", es.h.HandleSync)
}

// Start listens on addr with default timeouts until the server is shut down.
func (es *EchoServer) Start(addr string) error {
	return es.StartServer(DefaultHTTPServer(addr, es.e))
}

// StartServer runs the given http.Server with this API as its handler.
func (es *EchoServer) StartServer(server *http.Server) error {
	server.Handler = es.e
	es.srv = server
	return server.ListenAndServe()
}

// Shutdown drains in-flight requests before stopping.
func (es *EchoServer) Shutdown(ctx context.Context) error {
	if es.srv == nil {
		return errors.New("http server is not running")
	}
	return es.srv.Shutdown(ctx)
}

// Handler exposes the underlying mux for tests.
func (es *EchoServer) Handler() http.Handler {
	return es.e
}

// DefaultHTTPServer builds an http.Server with sane timeouts for the API.
func DefaultHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}
