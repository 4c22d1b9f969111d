// Command pacs_server runs a pacsnet DICOM storage, query and retrieve SCP:
// it accepts C-ECHO, C-STORE, C-FIND, C-MOVE and C-GET over a TCP listener,
// persisting instances to a file archive and indexing them for query.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caio-sobreiro/pacsnet/archive"
	"github.com/caio-sobreiro/pacsnet/cache"
	"github.com/caio-sobreiro/pacsnet/config"
	"github.com/caio-sobreiro/pacsnet/dimse"
	"github.com/caio-sobreiro/pacsnet/httpapi"
	"github.com/caio-sobreiro/pacsnet/index"
	"github.com/caio-sobreiro/pacsnet/logging"
	"github.com/caio-sobreiro/pacsnet/metrics"
	"github.com/caio-sobreiro/pacsnet/qr"
	"github.com/caio-sobreiro/pacsnet/server"
	"github.com/caio-sobreiro/pacsnet/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "pacs_server",
		Usage: "pacsnet DICOM storage, query and retrieve service class provider",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path",
				Value:   "pacsnet.yaml",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "pacs_server:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	a := archive.New(cfg.Archive.RootDir, archive.NamingScheme(cfg.Archive.NamingScheme),
		archive.DuplicatePolicy(cfg.Archive.DuplicatePolicy), true)

	idx, err := buildIndex(cfg.Index)
	if err != nil {
		return fmt.Errorf("failed to build metadata index: %w", err)
	}

	if cfg.Index.ScanArchiveAtStart {
		logger.Info("scanning archive to populate metadata index")
		if err := idx.Scan(a); err != nil {
			return fmt.Errorf("failed to scan archive: %w", err)
		}
		logger.Info("archive scan complete", "instances", idx.InstanceCount())
	}

	destinations := make(map[string]qr.Destination, len(cfg.Destinations))
	for ae, dest := range cfg.Destinations {
		destinations[ae] = qr.Destination{AETitle: ae, Address: dest.Address}
	}
	engine := qr.NewEngine(a, idx, cfg.AETitle, destinations)

	var findCache *cache.FindCache
	if cfg.Cache.Enabled {
		findCache = cache.New(cfg.Cache.Address, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		defer findCache.Close()
	}

	registry := services.NewRegistry()
	registry.RegisterHandler(dimse.CEchoRQ, services.NewEchoService())
	registry.RegisterHandler(dimse.CStoreRQ, services.NewStoreService(a, idx).WithCache(findCache))
	registry.RegisterHandler(dimse.CFindRQ, services.NewFindService(engine).WithCache(findCache))
	registry.RegisterHandler(dimse.CMoveRQ, services.NewMoveService(engine))
	registry.RegisterHandler(dimse.CGetRQ, services.NewGetService(engine))

	srv := server.New(cfg.AETitle, registry,
		server.WithLogger(logger),
		server.WithReadTimeout(time.Duration(cfg.Network.ReadTimeoutSeconds)*time.Second),
		server.WithWriteTimeout(time.Duration(cfg.Network.WriteTimeoutSeconds)*time.Second),
		server.WithAllowedCallingAETitles(cfg.Network.AllowedCallingAETitles),
		server.WithMaxAssociations(cfg.Network.MaxAssociations))

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)
	if cfg.Metrics.Enabled {
		go m.CollectLoop(ctx, 15*time.Second,
			func() metrics.ServerStats {
				stats := srv.Stats()
				return metrics.ServerStats{
					ActiveAssociations:   stats.ActiveAssociations,
					TotalAssociations:    stats.TotalAssociations,
					RejectedAssociations: stats.RejectedAssociations,
				}
			},
			idx.InstanceCount)
	}

	if cfg.Admin.Enabled {
		var metricsHandler http.Handler
		if cfg.Metrics.Enabled {
			metricsHandler = metrics.Handler(promRegistry)
		}
		adminSrv := &http.Server{Addr: cfg.Admin.Address, Handler: httpapi.Router(srv, a, idx, metricsHandler)}
		go func() {
			logger.Info("admin API listening", "address", cfg.Admin.Address)
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin API failed", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			adminSrv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("pacsnet server starting",
		"ae_title", cfg.AETitle, "address", cfg.Network.ListenAddress, "index_driver", cfg.Index.Driver)

	listener, err := net.Listen("tcp", cfg.Network.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Network.ListenAddress, err)
	}
	defer listener.Close()

	if err := srv.Serve(ctx, listener); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

func buildIndex(cfg config.IndexConfig) (index.Index, error) {
	switch cfg.Driver {
	case "postgres":
		gormIdx, err := index.NewPostgresIndex(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return gormIdx, nil
	default:
		return index.NewMemoryIndex(), nil
	}
}

