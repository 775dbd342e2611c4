// Command playlist-curator runs the LLM-backed Spotify playlist curator web application.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/justestif/go-spotify-playlist-curator/internal/auth"
	"github.com/justestif/go-spotify-playlist-curator/internal/config"
	"github.com/justestif/go-spotify-playlist-curator/internal/curator"
	"github.com/justestif/go-spotify-playlist-curator/internal/db"
	"github.com/justestif/go-spotify-playlist-curator/internal/genres"
	"github.com/justestif/go-spotify-playlist-curator/internal/llm"
	"github.com/justestif/go-spotify-playlist-curator/internal/logging"
	"github.com/justestif/go-spotify-playlist-curator/internal/queue"
	"github.com/justestif/go-spotify-playlist-curator/internal/resolve"
	"github.com/justestif/go-spotify-playlist-curator/internal/status"
	"github.com/justestif/go-spotify-playlist-curator/internal/store"
	"github.com/justestif/go-spotify-playlist-curator/internal/web"
	webfs "github.com/justestif/go-spotify-playlist-curator/web"
)

var _ genres.Store = (*db.ArtistGenreRepository)(nil)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   true,
	})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	q := queue.New(queue.WithSpacing(cfg.QueueSpacing), queue.WithLogger(log.Named("queue")))
	defer q.Close()

	var (
		database *db.DB
		sessions web.SessionManager = web.NewSessionStore()
		history  curator.History    = curator.NewMemoryHistory()
		cache    genres.Cache       = genres.NewMemoryCache()
	)

	if cfg.DatabaseURL != "" {
		database, err = db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			return err
		}
		if n, err := database.Sessions().DeleteExpired(ctx); err != nil {
			log.Warn("deleting expired sessions", zap.Error(err))
		} else if n > 0 {
			log.Info("deleted expired sessions", zap.Int64("count", n))
		}

		sessions = web.NewDBSessionStore(database, log.Named("sessions"))
		history = curator.NewDBHistory(database)
		cache = genres.NewStoreCache(database.ArtistGenres())
		log.Info("using PostgreSQL for sessions and history")
	}

	if cfg.RedisURL != "" {
		rc, err := newRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rc.Close()
		cache = genres.NewRedisCache(rc, genres.CacheTTL)
		log.Info("using Redis for the artist genre cache")
	}

	batchDir := cfg.BatchDir
	if batchDir == "" {
		if batchDir, err = store.DefaultDir(); err != nil {
			return err
		}
	}

	authenticator, err := auth.New(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURI)
	if err != nil {
		return err
	}

	hub := status.NewHub()
	model := llm.New(cfg.LLM, llm.WithLogger(log.Named("llm")))
	svc := curator.New(q, model,
		curator.WithLogger(log.Named("curator")),
		curator.WithModel(cfg.LLM.Model),
		curator.WithBatches(store.NewDir(batchDir)),
		curator.WithHistory(history),
		curator.WithSinks(hub.Topic),
		curator.WithGenreFetcher(genres.NewFetcher(q,
			genres.WithCache(cache),
			genres.WithLogger(log.Named("genres")))),
		curator.WithResolveOptions(resolve.WithFallThrough(cfg.ResolveFallThrough)),
	)

	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:          cfg.Addr,
		Auth:          authenticator,
		Sessions:      sessions,
		Curator:       svc,
		Hub:           hub,
		StaticFS:      static,
		Market:        cfg.Spotify.Market,
		SecureCookies: cfg.SecureCookies,
		Logger:        log.Named("web"),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run()
}

func newRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rc := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return rc, nil
}
