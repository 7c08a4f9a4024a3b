// Package app wires together every collaborator spec.md names (ring,
// node-health, node-sort, node-iteration, the request pipeline) plus the
// supplemented ambient and domain stack (SPEC_FULL §10, §11, §13) into one
// running process. There is no api/worker mode split here the way the
// teacher has one: a storage front door has no background-job or
// escalation-engine equivalent, so Run starts a single HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/duskgate/portcullis/internal/adminapi"
	"github.com/duskgate/portcullis/internal/adminsig"
	"github.com/duskgate/portcullis/internal/cache"
	"github.com/duskgate/portcullis/internal/classify"
	"github.com/duskgate/portcullis/internal/config"
	"github.com/duskgate/portcullis/internal/controller"
	"github.com/duskgate/portcullis/internal/dispatcher"
	"github.com/duskgate/portcullis/internal/httpserver"
	"github.com/duskgate/portcullis/internal/nodealert"
	"github.com/duskgate/portcullis/internal/nodehealth"
	"github.com/duskgate/portcullis/internal/nodesort"
	"github.com/duskgate/portcullis/internal/nodetiming"
	"github.com/duskgate/portcullis/internal/platform"
	"github.com/duskgate/portcullis/internal/requestlog"
	"github.com/duskgate/portcullis/internal/ring"
	"github.com/duskgate/portcullis/internal/telemetry"
	"github.com/duskgate/portcullis/pkg/info"
)

// adminTokenMaxAge bounds how long an issued admin capability token is
// valid. Not exposed as a config knob (SPEC_FULL §6 has no admin_token_ttl
// option); a fixed, short-ish lifetime keeps a leaked token's blast radius
// bounded without adding a setting nothing else calls for.
const adminTokenMaxAge = time.Hour

// Run is the application entry point: build every collaborator, mount the
// dispatcher, and serve until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting portcullis", "listen", cfg.ListenAddr())

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()
	sharedCache := cache.New(rdb)

	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	reqLog := requestlog.NewWriter(db, logger)
	reqLog.Start(ctx)
	defer reqLog.Close()

	metricsReg := telemetry.NewMetricsRegistry()

	slowdown := nodehealth.NewSlowdown(rdb, time.Duration(cfg.ErrorSuppressionIntervalSeconds)*time.Second)

	// One shared timing table across rings, matching the original's single
	// Application-wide node_timings map (spec §9's open question: timing
	// is keyed by IP only, so nodes sharing a host share one entry across
	// rings too).
	var timingTable *nodetiming.Table
	if cfg.SortingMethod == "timing" {
		timingTable = nodetiming.NewTable(time.Duration(cfg.TimingExpirySeconds) * time.Second)
	}

	strategy, err := buildStrategy(cfg, timingTable)
	if err != nil {
		return fmt.Errorf("building node-sort strategy: %w", err)
	}
	strategy = nodesort.SlowdownAware{Inner: strategy, Slowdown: slowdown}

	notifier := nodealert.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if notifier.IsEnabled() {
		logger.Info("slack node alerting enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack node alerting disabled (SLACK_BOT_TOKEN not set)")
	}

	accountRing, accountSel, err := buildRing(cfg, "account", cfg.AccountRingNodes, strategy, logger, slowdown, notifier)
	if err != nil {
		return fmt.Errorf("building account ring: %w", err)
	}
	containerRing, containerSel, err := buildRing(cfg, "container", cfg.ContainerRingNodes, strategy, logger, slowdown, notifier)
	if err != nil {
		return fmt.Errorf("building container ring: %w", err)
	}
	objectRing, objectSel, err := buildRing(cfg, "object", cfg.ObjectRingNodes, strategy, logger, slowdown, notifier)
	if err != nil {
		return fmt.Errorf("building object ring: %w", err)
	}

	accountSel.Timing = timingTable
	containerSel.Timing = timingTable
	objectSel.Timing = timingTable

	admin := adminsig.NewManager(cfg.AdminKey, adminTokenMaxAge)
	if admin.Enabled() {
		logger.Info("admin API enabled")
	} else {
		logger.Info("admin API disabled (ADMIN_KEY not set)")
	}

	infoRegistry := info.NewRegistry(cfg.ExposeInfo, cfg.DisallowedSections, admin)
	infoRegistry.Register("swift", map[string]any{
		"max_file_size":            1 << 40,
		"account_listing_limit":    10000,
		"container_listing_limit":  10000,
		"allow_account_management": cfg.AllowAccountManagement,
	})
	infoRegistry.Register("replication", map[string]any{
		"account":   map[string]int{"replica_count": accountRing.ReplicaCount()},
		"container": map[string]int{"replica_count": containerRing.ReplicaCount()},
		"object":    map[string]int{"replica_count": objectRing.ReplicaCount()},
	})
	infoRegistry.Register("staticweb", map[string]any{})
	infoRegistry.Register("tempurl", map[string]any{
		"methods": []string{http.MethodGet, http.MethodHead, http.MethodPut},
	})

	denyHosts := make(map[string]struct{}, len(cfg.DenyHostHeaders))
	for _, h := range cfg.DenyHostHeaders {
		denyHosts[h] = struct{}{}
	}

	disp := &dispatcher.Dispatcher{
		Factories: map[classify.Kind]controller.Factory{
			classify.Account: controller.NewAccountFactory(accountSel, cfg.AllowAccountManagement, sharedCache,
				time.Duration(cfg.RecheckAccountExistenceSeconds)*time.Second),
			classify.Container: controller.NewContainerFactory(containerSel, sharedCache,
				time.Duration(cfg.RecheckContainerExistenceSeconds)*time.Second),
			classify.Object: controller.NewObjectFactory(objectSel),
		},
		DenyHostHeaders: denyHosts,
		TransIDSuffix:   cfg.TransIDSuffix,
		Logger:          logger,
		RequestLog:      reqLog,
	}

	adminHandler := &adminapi.Handler{
		Rings: map[string]adminapi.Reloadable{
			"account":   accountRing,
			"container": containerRing,
			"object":    objectRing,
		},
		Admin:  admin,
		Logger: logger,
	}

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowOrigin,
		MetricsPath:        cfg.MetricsPath,
	}, logger, metricsReg)

	srv.Router.Get("/info", infoRegistry.ServeHTTP)
	srv.Router.Get("/info/*", infoRegistry.ServeHTTP)
	srv.Router.Post("/admin/ring/reload", adminHandler.ReloadRing)
	srv.Router.Handle("/*", disp)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  time.Duration(cfg.ClientTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.NodeTimeoutSeconds) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildStrategy selects the node.sort strategy named by sorting_method
// (spec §4.3). Load already rejected any other value.
func buildStrategy(cfg *config.Config, timing *nodetiming.Table) (nodesort.Strategy, error) {
	switch cfg.SortingMethod {
	case "shuffle":
		return nodesort.Shuffle{}, nil
	case "timing":
		return nodesort.Timing{Table: timing}, nil
	case "affinity":
		return nodesort.Affinity{ReadAffinity: cfg.ReadAffinity}, nil
	default:
		return nil, fmt.Errorf("unknown sorting_method %q", cfg.SortingMethod)
	}
}

// buildRing parses name's bootstrap node list and constructs its ring and
// Selector. The Selector's Timing field is left nil; the caller assigns
// the shared timing table afterward, since all three rings share one
// table (see Run).
func buildRing(cfg *config.Config, name string, specs []string, strategy nodesort.Strategy, logger *slog.Logger, slowdown *nodehealth.Slowdown, notifier *nodealert.Notifier) (*ring.MemRing, *controller.Selector, error) {
	nodes := make([]ring.Node, 0, len(specs))
	for _, spec := range specs {
		n, err := ring.ParseNodeSpec(spec)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}

	r := ring.NewMemRing(nodes, cfg.ReplicaCount, cfg.PartitionBits)
	health := nodehealth.NewTable(
		cfg.ErrorSuppressionLimit,
		time.Duration(cfg.ErrorSuppressionIntervalSeconds)*time.Second,
		logger,
		name,
	)
	health.AttachSlowdown(slowdown)
	sel := &controller.Selector{
		Ring:        r,
		Health:      health,
		Strategy:    strategy,
		Budget:      cfg.RequestNodeCount,
		LogHandoffs: cfg.LogHandoffs,
		Logger:      logger,
		Name:        name,
		Alert:       notifier,
	}
	return r, sel, nil
}
