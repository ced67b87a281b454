package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vidstream/client/internal/api"
	"github.com/vidstream/client/internal/config"
	"github.com/vidstream/client/internal/models"
	"github.com/vidstream/client/internal/realtime"
	"github.com/vidstream/client/internal/session"
	"github.com/vidstream/client/internal/store"
	"github.com/vidstream/client/internal/upload"
	"github.com/vidstream/client/internal/users"
)

// Dependencies aggregates the wired client components for one session.
type Dependencies struct {
	Session *session.Session
	Client  *api.Client
	Store   *store.Store
	Engine  *realtime.Engine
	Uploads *upload.Controller
	Users   *users.Service
}

// buildDependencies wires the client stack: session, REST client, entity
// store, synchronization engine, upload controller, and the admin directory.
// The identity behind the configured token is resolved up front.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Dependencies, error) {
	sess := session.New()
	sess.SetCredentials(cfg.Token, models.User{})

	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, sess)

	me, err := client.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	sess.SetCredentials(cfg.Token, me)

	entityStore := store.New(client, cfg.RefetchDebounce, logger)

	engine := realtime.NewEngine(
		realtime.WebsocketDialer{},
		cfg.ChannelURL,
		entityStore,
		realtime.Options{RetryLimit: cfg.ReconnectAttempts, RetryDelay: cfg.ReconnectDelay},
		logger,
	)

	return &Dependencies{
		Session: sess,
		Client:  client,
		Store:   entityStore,
		Engine:  engine,
		Uploads: upload.NewController(client, entityStore, engine, logger),
		Users:   users.NewService(client, sess, logger),
	}, nil
}

// Close tears the session's resources down in dependency order.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.Engine != nil {
		_ = d.Engine.Close()
	}
	if d.Store != nil {
		d.Store.Close()
	}
}
