package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/listnote/listnote-core/internal/adapters/driven/api"
	"github.com/listnote/listnote-core/internal/adapters/driven/memory"
	"github.com/listnote/listnote-core/internal/adapters/driven/postgres"
	redisadapter "github.com/listnote/listnote-core/internal/adapters/driven/redis"
	"github.com/listnote/listnote-core/internal/adapters/driven/sqlite"
	"github.com/listnote/listnote-core/internal/config"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
)

// Backends are the driven adapters an App runs on
type Backends struct {
	Files    driven.FileStore
	Tasks    driven.TaskStore
	UserData driven.UserDataStore
	Local    driven.LocalStore
	Topics   driven.TopicFactory
	Collab   driven.CollabTransport
	// Lock is nil without Redis; a single device needs no journal lock
	Lock driven.DistributedLock

	// Describe names the chosen adapters for startup logging
	Describe string

	closers []func() error
}

// Close releases every connection opened by Connect, last opened first
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *Backends) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Connect opens the backends selected by cfg. Storage goes to the API
// or Postgres, markers to a local SQLite file, and topics plus
// collaboration rooms to Redis when configured, in process otherwise.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Backends, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backends{}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	var storage string
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pgCfg := postgres.DefaultConfig(cfg.Storage.DatabaseURL)
		pgCfg.InitSchema = cfg.Storage.InitSchema
		db, err := postgres.Connect(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		b.onClose(db.Close)
		b.Files = postgres.NewFileStore(db)
		b.Tasks = postgres.NewTaskStore(db)
		b.UserData = postgres.NewUserDataStore(db, cfg.User.ID)
		storage = "postgres"
	case config.BackendAPI:
		client, err := api.NewClient(cfg.API.URL, cfg.API.Token)
		if err != nil {
			return nil, err
		}
		b.onClose(client.Close)
		b.Files, b.Tasks, b.UserData = client, client, client
		storage = "api"
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	local, err := sqlite.Open(ctx, cfg.Storage.LocalPath)
	if err != nil {
		return nil, err
	}
	b.onClose(local.Close)
	b.Local = local

	hub := "memory"
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		b.onClose(client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		b.Topics = redisadapter.NewTopics(client, logger)
		b.Collab = redisadapter.NewCollab(client, logger)
		b.Lock = redisadapter.NewLock(client)
		hub = "redis"
	} else {
		h := memory.NewHub()
		b.Topics, b.Collab = h, h
	}

	b.Describe = fmt.Sprintf("storage=%s local=%s hub=%s", storage, cfg.Storage.LocalPath, hub)
	return b, nil
}
