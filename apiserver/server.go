// Package apiserver exposes a read-only JSON view of the node
package apiserver

import (
	goctx "context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ds-test-framework/lobby/log"
	"github.com/ds-test-framework/lobby/matchmaking"
	"github.com/ds-test-framework/lobby/types"
	"github.com/gin-gonic/gin"
)

const DefaultAddr = "0.0.0.0:7074"

// NodeStatus summarises the node for GET /status
type NodeStatus struct {
	NodeID        string `json:"node_id"`
	Role          string `json:"role"`
	Self          string `json:"self"`
	Primary       string `json:"primary"`
	QueuedClients int    `json:"queued_clients"`
	Sessions      int    `json:"sessions"`
}

// StatusSource is what the API reads from. It is implemented by the node.
type StatusSource interface {
	Status() NodeStatus
	Replicas() []string
	Names() []string
	Queues() map[int][]*matchmaking.WaitingClient
	Sessions() []*matchmaking.GameSession
	Session(id int) (*matchmaking.GameSession, bool)
}

type APIServer struct {
	router *gin.Engine
	source StatusSource

	server   *http.Server
	listener net.Listener
	addr     string

	*types.BaseService
}

func NewAPIServer(addr string, source StatusSource, logger *log.Logger) *APIServer {
	if addr == "" {
		addr = DefaultAddr
	}
	server := &APIServer{
		source:      source,
		addr:        addr,
		BaseService: types.NewBaseService("APIServer", logger),
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(server.logMiddleware)

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/status")
	})
	router.GET("/status", server.handleStatus)
	router.GET("/replicas", server.handleReplicas)
	router.GET("/names", server.handleNames)
	router.GET("/queues", server.handleQueues)
	router.GET("/sessions", server.handleSessions)
	router.GET("/sessions/:session", server.handleSessionGet)

	server.router = router
	server.server = &http.Server{
		Handler: router,
	}

	return server
}

// Handler returns the router, mainly for tests
func (a *APIServer) Handler() http.Handler {
	return a.router
}

// Addr is the bound address once Start returned
func (a *APIServer) Addr() string {
	if a.listener == nil {
		return a.addr
	}
	return a.listener.Addr().String()
}

func (a *APIServer) logMiddleware(c *gin.Context) {
	start := time.Now()
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery

	c.Next()

	end := time.Now()
	if raw != "" {
		path = path + "?" + raw
	}
	a.Logger.With(log.LogParams{
		"latency":     end.Sub(start).String(),
		"client_ip":   c.ClientIP(),
		"method":      c.Request.Method,
		"status_code": c.Writer.Status(),
		"body_size":   c.Writer.Size(),
		"path":        path,
	}).Debug("Handled request")
}

// Start binds the listener and serves in the background
func (a *APIServer) Start() error {
	l, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	a.listener = l
	a.StartRunning()
	go func() {
		a.Logger.With(log.LogParams{
			"addr": a.Addr(),
		}).Info("API server starting!")
		if err := a.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.With(log.LogParams{
				"addr": a.Addr(),
			}).WithError(err).Error("API server closed!")
		}
	}()
	return nil
}

func (a *APIServer) Stop() error {
	if !a.Running() {
		return nil
	}
	a.StopRunning()
	ctx, cancel := goctx.WithTimeout(goctx.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.Logger.Error("API server focefully shutdown")
		return err
	}
	a.Logger.Info("API server stopped!")
	return nil
}
