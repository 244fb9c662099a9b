package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/beadgraph/internal/config"
	"github.com/alfredjeanlab/beadgraph/internal/events"
	"github.com/alfredjeanlab/beadgraph/internal/graph"
	"github.com/alfredjeanlab/beadgraph/internal/server"
	"github.com/alfredjeanlab/beadgraph/internal/snapshot"
	"github.com/alfredjeanlab/beadgraph/internal/source"
	"github.com/alfredjeanlab/beadgraph/internal/viewer"
)

// layoutCacheSize bounds the number of distinct graphs whose layout is
// kept.
const layoutCacheSize = 32

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the dependency graph over HTTP, WebSocket and SSE",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		src, err := openSource(cfg)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				src.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = events.NoopPublisher{}
			logger.Info("events disabled (KG_NATS_URL not set)")
		}

		var grpcLis net.Listener
		if cfg.GRPCAddr != "" {
			if grpcLis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
				publisher.Close()
				src.Close()
				return err
			}
		}

		v := viewer.New(src,
			viewer.WithFilter(cfg.IssueFilter()),
			viewer.WithPublisher(publisher),
			viewer.WithCache(graph.NewCache(layoutCacheSize)),
		)
		srv := server.New(v, publisher)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if snap, err := srv.Refresh(ctx); err != nil {
			logger.Warn("initial graph load failed; serving an empty graph until the next refresh", "source", src.Name(), "err", err)
		} else {
			logger.Info("graph loaded", "source", src.Name(), "issues", len(snap.Issues()), "key", snap.Key)
		}

		watcher, err := newWatcher(cfg, src)
		if err != nil {
			if grpcLis != nil {
				grpcLis.Close()
			}
			srv.Close()
			publisher.Close()
			src.Close()
			return err
		}
		watchDone := make(chan struct{})
		go func() {
			defer close(watchDone)
			if watcher == nil {
				return
			}
			logger.Info("watching for graph changes", "mode", cfg.WatchMode())
			if err := srv.Watch(ctx, watcher); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("graph watcher stopped", "err", err)
			}
		}()

		if cfg.SessionIdle > 0 {
			srv.Sessions().StartReaper(&viewer.ReaperConfig{IdleTimeout: cfg.SessionIdle})
		}

		scheduler, err := newSnapshotScheduler(ctx, cfg, v, logger)
		if err != nil {
			logger.Error("snapshots disabled", "err", err)
		} else if scheduler != nil {
			scheduler.Start()
			logger.Info("snapshot scheduler started", "schedule", cfg.Snapshot.Schedule)
		}

		var grpcStop func()
		if grpcLis != nil {
			grpcServer := srv.NewGRPCServer(cfg.AuthToken)
			grpcStop = grpcServer.GracefulStop
			go func() {
				logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
				if err := grpcServer.Serve(grpcLis); err != nil {
					logger.Error("gRPC server error", "err", err)
				}
			}()
		}

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
				stop()
			}
		}()

		logger.Info("kg server started", "http_addr", cfg.HTTPAddr, "grpc_addr", cfg.GRPCAddr, "source", src.Name())

		<-ctx.Done()
		logger.Info("shutting down")

		<-watchDone
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("snapshot scheduler stopped")
		}
		if grpcStop != nil {
			grpcStop()
			logger.Info("gRPC server stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		srv.Close()
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := src.Close(); err != nil {
			logger.Error("error closing source", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// newWatcher builds the change feed for cfg. A nil watcher means the graph
// is only refreshed on demand.
func newWatcher(cfg *config.Config, src source.Source) (source.Watcher, error) {
	switch cfg.WatchMode() {
	case config.WatchNATS:
		return source.NewNATSWatcher(cfg.NATSURL), nil
	case config.WatchSSE:
		hs, ok := src.(*source.HTTPSource)
		if !ok {
			return nil, errors.New("sse watch requires the http source")
		}
		return source.NewSSEWatcher(hs.Client()), nil
	case config.WatchPoll:
		return source.NewPollWatcher(cfg.PollInterval), nil
	}
	return nil, nil
}

// newSnapshotScheduler returns nil when snapshots are not configured.
// Destinations that fail to initialise are logged and skipped.
func newSnapshotScheduler(ctx context.Context, cfg *config.Config, v *viewer.Viewer, logger *slog.Logger) (*snapshot.Scheduler, error) {
	sc := cfg.Snapshot
	if !sc.Enabled() {
		return nil, nil
	}

	var dests []snapshot.Destination
	if sc.S3Bucket != "" {
		d, err := snapshot.NewS3Destination(ctx, sc.S3Bucket, sc.S3Key, sc.S3Region, sc.S3Endpoint, sc.S3History)
		if err != nil {
			logger.Error("failed to create S3 snapshot destination", "err", err)
		} else {
			dests = append(dests, d)
			logger.Info("snapshot S3 destination enabled", "bucket", sc.S3Bucket, "key", sc.S3Key)
		}
	}
	if sc.GitRepo != "" {
		dests = append(dests, snapshot.NewGitDestination(sc.GitRepo, sc.GitFile, sc.GitBranch))
		logger.Info("snapshot git destination enabled", "repo", sc.GitRepo, "file", sc.GitFile)
	}
	if sc.File != "" {
		dests = append(dests, snapshot.NewFileDestination(sc.File))
		logger.Info("snapshot file destination enabled", "path", sc.File)
	}
	if len(dests) == 0 {
		return nil, errors.New("no usable snapshot destination")
	}

	format, err := snapshot.ParseFormat(sc.Format)
	if err != nil {
		return nil, err
	}
	return snapshot.NewScheduler(v, dests, snapshot.Options{
		Schedule: sc.Schedule,
		Format:   format,
		Width:    sc.Width,
		Height:   sc.Height,
	}, logger)
}
