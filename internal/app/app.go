// Package app wires configuration into a running sync client: session, record
// store backend, repositories, change feed and coordinator.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"example.com/habitsync/internal/changefeed"
	"example.com/habitsync/internal/config"
	"example.com/habitsync/internal/coordinator"
	"example.com/habitsync/internal/recordstore"
	"example.com/habitsync/internal/recordstore/memory"
	"example.com/habitsync/internal/recordstore/pocketbase"
	"example.com/habitsync/internal/recordstore/postgres"
	"example.com/habitsync/internal/repository"
	"example.com/habitsync/internal/session"
)

// App is an assembled client. Close releases every resource it opened.
type App struct {
	Session     *session.Session
	Store       recordstore.Store
	Coordinator *coordinator.Coordinator
	Feed        *changefeed.Broadcaster

	closers []func()
}

// New assembles the client described by cfg. Background workers run until ctx
// is done or Close is called.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	mode, ok := repository.ParseCheckInMode(cfg.CheckInMode)
	if !ok {
		return nil, fmt.Errorf("unknown CHECKIN_MODE %q", cfg.CheckInMode)
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &App{Feed: changefeed.NewBroadcaster()}
	a.closers = append(a.closers, cancel)
	if err := a.openStore(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}

	publishers := changefeed.Multi{a.Feed}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub := changefeed.NewKafkaPublisher(cfg.KafkaBrokers, cfg.ChangefeedTopic)
		dispatcherOpts := []changefeed.DispatcherOption{changefeed.WithDispatcherLogger(logger)}
		if cfg.StoreTimeout > 0 {
			dispatcherOpts = append(dispatcherOpts, changefeed.WithPublishTimeout(cfg.StoreTimeout))
		}
		dispatcher := changefeed.NewDispatcher("kafka", kafkaPub, 256, dispatcherOpts...)
		go dispatcher.Start(ctx)
		a.closers = append(a.closers, func() {
			cancel()
			dispatcher.Wait()
			if err := kafkaPub.Close(); err != nil {
				logger.Warn("close kafka publisher", zap.Error(err))
			}
		})
		publishers = append(publishers, dispatcher)
		logger.Info("change feed publishing to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.ChangefeedTopic))
	}

	repoOpts := []repository.Option{
		repository.WithLogger(logger.Named("repository")),
		repository.WithLocation(loc),
		repository.WithCheckInMode(mode),
	}
	a.Coordinator = coordinator.New(a.Session,
		repository.NewHabits(a.Store, repoOpts...),
		repository.NewGoals(a.Store, repoOpts...),
		repository.NewJournal(a.Store, repoOpts...),
		coordinator.WithLogger(logger.Named("coordinator")),
		coordinator.WithPublisher(publishers),
		coordinator.WithFailureBuffer(cfg.FailureBuffer),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	switch cfg.StoreBackend {
	case config.BackendPocketBase:
		sess, err := session.Parse(cfg.AuthToken, session.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
		if err != nil {
			return fmt.Errorf("auth token: %w", err)
		}
		a.Session = sess
		a.Store = pocketbase.NewClient(cfg.StoreURL, sess,
			pocketbase.WithTimeout(cfg.StoreTimeout),
			pocketbase.WithLogger(logger.Named("pocketbase")),
		)
		return nil

	case config.BackendPostgres:
		sess, err := localSession(cfg)
		if err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		store := postgres.NewStore(pool, postgres.WithLogger(logger.Named("postgres")))
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.Session = sess
		a.Store = store.For(sess)
		return nil

	case config.BackendMemory:
		sess, err := localSession(cfg)
		if err != nil {
			return err
		}
		a.Session = sess
		a.Store = memory.NewStore().For(sess)
		return nil

	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// localSession is the session of a backend without its own auth: taken from
// AUTH_TOKEN when present, else USER_ID.
func localSession(cfg config.Config) (*session.Session, error) {
	if cfg.AuthToken != "" {
		sess, err := session.Parse(cfg.AuthToken, session.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
		if err != nil {
			return nil, fmt.Errorf("auth token: %w", err)
		}
		return sess, nil
	}
	if cfg.UserID == "" {
		return nil, errors.New("USER_ID or AUTH_TOKEN is required for the " + cfg.StoreBackend + " backend")
	}
	return session.Local(cfg.UserID), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
