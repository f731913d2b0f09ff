// Package gateway exposes the HTTP surface: device registration, task
// assignment and submission, statistics, and the swarm websocket channel.
package gateway

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"neuroswarm/internal/ledger"
	"neuroswarm/internal/matcher"
	"neuroswarm/internal/registry"
	"neuroswarm/internal/swarm"
	"neuroswarm/internal/task"
	"neuroswarm/internal/util"
)

// Server handles the REST and websocket surface.
type Server struct {
	registry *registry.Registry
	catalog  *task.Catalog
	matcher  *matcher.Matcher
	ledger   *ledger.Ledger
	swarm    *swarm.Coordinator

	metricsHandler http.Handler
	upgrader       websocket.Upgrader
	server         *http.Server
	log            *logrus.Entry

	// baseCtx scopes swarm connections to the server lifetime rather than
	// the upgrade request, which is cancelled as soon as its handler
	// returns.
	baseCtx context.Context
}

// NewServer creates the gateway. metricsHandler may be nil to disable the
// /metrics endpoint.
func NewServer(reg *registry.Registry, cat *task.Catalog, m *matcher.Matcher, led *ledger.Ledger, sw *swarm.Coordinator, metricsHandler http.Handler) *Server {
	return &Server{
		registry:       reg,
		catalog:        cat,
		matcher:        m,
		ledger:         led,
		swarm:          sw,
		metricsHandler: metricsHandler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logrus.WithField("component", "gateway"),
	}
}

// Routes builds the HTTP handler. Exposed separately so tests can drive the
// surface through httptest without binding a port.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/devices/register", s.handleRegister)
	mux.HandleFunc("GET /api/devices/{id}", s.handleGetDevice)
	mux.HandleFunc("GET /api/devices/{id}/stats", s.handleDeviceStats)
	mux.HandleFunc("GET /api/devices/{id}/history", s.handleDeviceHistory)
	mux.HandleFunc("POST /api/devices/{id}/heartbeat", s.handleHeartbeat)

	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /api/tasks/submit", s.handleSubmitResult)
	mux.HandleFunc("POST /api/tasks/{node}/assign", s.handleAssign)

	mux.HandleFunc("GET /api/stats/network", s.handleNetworkStats)
	mux.HandleFunc("GET /api/stats/{wallet}", s.handleWalletStats)
	mux.HandleFunc("GET /api/earnings/{wallet}", s.handleEarnings)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /swarm", s.handleSwarm)

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	return mux
}

// Start serves the gateway until ctx is cancelled.
func (s *Server) Start(ctx context.Context, listenAddr string) error {
	s.baseCtx = ctx
	s.server = &http.Server{
		Addr:    listenAddr,
		Handler: s.Routes(),
	}

	go func() {
		s.log.WithField("addr", listenAddr).Info("gateway listening")
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.log.WithError(err).Error("gateway server error")
		}
	}()

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.log.WithError(err).Error("gateway shutdown error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the gateway.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// handleSwarm upgrades the connection and hands it to the coordinator as an
// unadmitted member.
func (s *Server) handleSwarm(w http.ResponseWriter, r *http.Request) {
	remoteIP := util.GetRemoteIP(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).WithField("remote", remoteIP).Warn("websocket upgrade failed")
		return
	}
	s.log.WithField("remote", remoteIP).Debug("swarm connection opened")
	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	s.swarm.AddConnection(ctx, conn)
}
