package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vidstream/client/internal/api"
	"github.com/vidstream/client/internal/config"
	"github.com/vidstream/client/internal/models"
	"github.com/vidstream/client/internal/realtime"
)

// Run bootstraps the vidstream client.
func Run(ctx context.Context, args []string) error {
	command := "watch"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "watch":
		return watch(ctx)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// watch authenticates, loads the visible video collection, connects the push
// channel, and logs pipeline activity until interrupted.
func watch(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if cfg.Token == "" {
		return errors.New("VIDSTREAM_TOKEN is required")
	}

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	me := deps.Session.User()
	logger.Info("signed in", "userId", me.ID, "role", me.Role)

	if err := deps.Store.FetchAll(ctx, api.Filters{}); err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return err
		}
		logger.Warn("initial fetch failed, retry via live updates", "error", err)
	} else {
		logger.Info("video collection loaded", "count", deps.Store.Len())
	}

	offStore := deps.Store.Subscribe(func() {
		logger.Debug("collection changed", "count", deps.Store.Len())
	})
	defer offStore()

	offProgress := deps.Engine.On(realtime.EventVideoProgress, func(data json.RawMessage) {
		var ev models.ProgressEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		logger.Info("processing update", "videoId", ev.VideoID, "progress", ev.Progress, "status", ev.Status)
	})
	defer offProgress()

	// A torn-down session (401 anywhere) stops live updates as well.
	offSignOut := deps.Session.OnSignOut(func() {
		logger.Warn("session torn down, closing live update channel")
		_ = deps.Engine.Close()
	})
	defer offSignOut()

	if err := deps.Engine.Connect(me.ID); err != nil {
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
