// Package node is the composition root: it wires the store, registry, task
// catalog, matcher, ledger, swarm coordinator, event publisher, and gateway,
// and owns every periodic job so background work starts and stops with the
// process.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"neuroswarm/internal/config"
	"neuroswarm/internal/events"
	"neuroswarm/internal/gateway"
	"neuroswarm/internal/ledger"
	"neuroswarm/internal/matcher"
	"neuroswarm/internal/registry"
	"neuroswarm/internal/store"
	"neuroswarm/internal/swarm"
	"neuroswarm/internal/task"
)

// Node owns the coordination core's components and their lifecycle.
type Node struct {
	cfg *config.Config

	store     store.Store
	registry  *registry.Registry
	catalog   *task.Catalog
	ledger    *ledger.Ledger
	matcher   *matcher.Matcher
	swarm     *swarm.Coordinator
	publisher *events.Publisher
	gateway   *gateway.Server
	metrics   *Metrics

	log  *logrus.Entry
	done chan struct{}
}

// New wires the components from configuration.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	st, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.New(cfg.NATSURL, events.Config{
			MaxAge: 24 * time.Hour,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connecting event publisher: %w", err)
		}
	}

	reg := registry.New(st, cfg.LivenessThreshold)
	cat := task.NewCatalog(st, cfg.PoolFloor, cfg.ColdStartBatch)
	led := ledger.New(st)
	metrics := NewMetrics()

	sw := swarm.New(swarm.Config{
		SwarmID:           cfg.SwarmID,
		Difficulty:        cfg.ChallengeDifficulty,
		ChallengeTTL:      cfg.ChallengeTTL,
		EvictionAge:       cfg.EvictionAge,
		LeaderDutyTimeout: cfg.LeaderDutyTimeout,
	}, reg, &swarmFanout{publisher: publisher})

	m := matcher.New(reg, cat, led, st, &taskFanout{
		publisher: publisher,
		swarm:     sw,
		metrics:   metrics,
	}, cfg.RetryBudget)

	gw := gateway.NewServer(reg, cat, m, led, sw, promhttp.Handler())

	return &Node{
		cfg:       cfg,
		store:     st,
		registry:  reg,
		catalog:   cat,
		ledger:    led,
		matcher:   m,
		swarm:     sw,
		publisher: publisher,
		gateway:   gw,
		metrics:   metrics,
		log:       logrus.WithField("component", "node"),
		done:      make(chan struct{}),
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if !cfg.DatabaseEnabled {
		return store.NewMemory(), nil
	}
	return store.NewPostgres(ctx, store.PostgresConfig{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Name,
		MaxConns:    int32(cfg.Database.MaxConns),
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
		SSLMode:     cfg.Database.SSLMode,
	})
}

// Start seeds the task pool, starts the gateway, and launches the periodic
// jobs. It returns once everything is running.
func (n *Node) Start(ctx context.Context) error {
	if err := n.catalog.ColdStart(ctx); err != nil {
		return fmt.Errorf("seeding task pool: %w", err)
	}

	if err := n.gateway.Start(ctx, n.cfg.ListenAddr); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	go n.periodicTasks(ctx)
	n.log.WithField("addr", n.cfg.ListenAddr).Info("node started")
	return nil
}

// periodicTasks owns every recurring job: liveness sweep with task reclaim,
// pool replenishment, and the swarm watchdogs. One loop so they all stop
// together on shutdown.
func (n *Node) periodicTasks(ctx context.Context) {
	defer close(n.done)

	sweep := time.NewTicker(n.cfg.SweepInterval)
	replenish := time.NewTicker(n.cfg.ReplenishInterval)
	swarmTick := time.NewTicker(n.cfg.SwarmTickInterval)
	defer sweep.Stop()
	defer replenish.Stop()
	defer swarmTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			n.runSweep(ctx)
		case <-replenish.C:
			if err := n.catalog.Replenish(ctx); err != nil {
				n.log.WithError(err).Warn("task replenishment failed")
			}
		case <-swarmTick.C:
			n.swarm.EvictStale()
			n.swarm.CheckLeaderDuty()
			n.refreshGauges(ctx)
		}
	}
}

// runSweep marks silent nodes OFFLINE and reclaims any tasks they held.
func (n *Node) runSweep(ctx context.Context) {
	swept, err := n.registry.SweepOffline(ctx)
	if err != nil {
		n.log.WithError(err).Warn("liveness sweep failed")
		return
	}
	if len(swept) == 0 {
		return
	}
	reclaimed, err := n.matcher.Reclaim(ctx, swept)
	if err != nil {
		n.log.WithError(err).Warn("task reclaim failed")
	}
	n.log.WithFields(logrus.Fields{
		"swept":     len(swept),
		"reclaimed": reclaimed,
	}).Info("liveness sweep completed")
}

func (n *Node) refreshGauges(ctx context.Context) {
	stats, err := n.registry.NetworkStats(ctx)
	if err == nil {
		n.metrics.OnlineNodes.Set(float64(stats.ActiveNodes))
		n.metrics.AssignedTasks.Set(float64(stats.ActiveTasks))
	}
	if available, err := n.catalog.ListAvailable(ctx); err == nil {
		n.metrics.AvailableTasks.Set(float64(len(available)))
	}
	n.metrics.SwarmMembers.Set(float64(n.swarm.MemberCount()))
}

// Stop shuts the node down in dependency order.
func (n *Node) Stop() error {
	if err := n.gateway.Stop(); err != nil {
		n.log.WithError(err).Warn("gateway shutdown error")
	}
	if err := n.publisher.Close(); err != nil {
		n.log.WithError(err).Warn("publisher shutdown error")
	}
	n.metrics.Close()
	return n.store.Close()
}
