package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"attendguard/config"
	"attendguard/handler"
	"attendguard/logger"
	"attendguard/model"
	"attendguard/repository"
	"attendguard/storage"
	"attendguard/usecase"
	"attendguard/utils"
)

type sessionStore interface {
	usecase.SessionCatalog
	PutSession(ctx context.Context, entry *model.SessionEntry) error
}

// app is the wired service shared by the commands.
type app struct {
	cfg     *config.Config
	store   *storage.Fallback
	mongo   *mongo.Client
	catalog sessionStore
	svc     *usecase.AttendanceService
}

// newApp connects the configured backends. With inMemory set, attendance
// history and sessions are kept in process instead of Mongo.
func newApp(ctx context.Context, cfg *config.Config, inMemory bool) (*app, error) {
	zone, err := cfg.Zone()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storage.Options{
		Backend:        cfg.Store.Backend,
		Path:           cfg.Store.Path,
		RedisURL:       cfg.Store.RedisURL,
		RedisKeyPrefix: cfg.Store.RedisKeyPrefix,
		ConnectTimeout: cfg.Store.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: store}
	var history usecase.AttendanceHistoryStore
	if inMemory {
		history = repository.NewMemoryAttendanceRepo()
		a.catalog = repository.NewMemorySessionCatalog()
	} else {
		client, err := connectMongo(ctx, cfg.Database)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.mongo = client

		db := client.Database(cfg.Database.DatabaseName)
		if err := repository.SetupIndexes(ctx, db, cfg.Database.AttendanceCollection, cfg.Database.SessionsCollection); err != nil {
			a.Close()
			return nil, err
		}
		history = repository.GetAttendanceRepo(client, cfg.Database.DatabaseName, cfg.Database.AttendanceCollection)
		a.catalog = repository.GetSessionCatalogRepo(client, cfg.Database.DatabaseName, cfg.Database.SessionsCollection,
			cfg.Attendance.LocationCacheSize, cfg.Attendance.LocationCacheTTL)
	}

	a.svc = usecase.NewAttendanceService(store, history, a.catalog, utils.RealClock{}, usecase.ServiceConfig{
		FingerprintValidity: cfg.Attendance.FingerprintValidity,
		GeolocationTimeout:  cfg.Attendance.GeolocationTimeout,
		LedgerScope:         cfg.Attendance.LedgerScope,
		ExpireOnSessionEnd:  cfg.Attendance.ExpireOnSessionEnd,
		Zone:                zone,
	})
	return a, nil
}

func (a *app) Close() {
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			logger.Warn(ctx).Err(err).Msg("error disconnecting from MongoDB")
		}
	}
	if err := a.store.Close(); err != nil {
		logger.Warn(context.Background()).Err(err).Msg("error closing device store")
	}
}

func connectMongo(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Client, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetRetryWrites(cfg.RetryWrites).
		SetPoolMonitor(utils.MongoPoolMonitor())

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.ConnectTimeout

	var client *mongo.Client
	err := backoff.RetryNotify(
		func() error {
			c, err := mongo.Connect(ctx, clientOptions)
			if err != nil {
				return err
			}
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := c.Ping(pingCtx, readpref.Primary()); err != nil {
				_ = c.Disconnect(context.Background())
				return err
			}
			client = c
			return nil
		},
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			logger.Warn(ctx).Err(err).Dur("next", next).Msg("retrying MongoDB connection")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	logger.Info(ctx).Str("database", cfg.DatabaseName).Msg("connected to MongoDB")
	return client, nil
}

func buildServeCmd(getConfig func() *config.Config) *cobra.Command {
	var inMemory bool
	var origins []string
	var sessionsFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the attendance HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			if cfg.Auth.JWTSecretKey == "" {
				return errors.New("JWT_SECRET_KEY is not set")
			}
			if !cmd.Flags().Changed("allowed-origin") {
				origins = cfg.HTTP.AllowedOrigins
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, inMemory)
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionsFile != "" {
				if err := seedSessions(ctx, a.catalog, sessionsFile); err != nil {
					return err
				}
			}

			sweepCtx, stopSweeps := context.WithCancel(ctx)
			defer stopSweeps()
			housekeeper := usecase.NewHousekeeper(a.svc.Janitor(), cfg.Attendance.RestrictionRetention, cfg.Attendance.CleanupInterval)
			sweeps := housekeeper.Start(sweepCtx)

			health := &handler.HealthHandler{
				Store:     a.store,
				Backend:   cfg.Store.Backend,
				StartedAt: time.Now(),
			}
			if a.mongo != nil {
				health.PingMongo = func(ctx context.Context) error {
					return a.mongo.Ping(ctx, readpref.Primary())
				}
			}

			router := handler.SetupRouter(handler.NewAttendanceHandler(a.svc), health, handler.RouterConfig{
				JWTSecretKey:   cfg.Auth.JWTSecretKey,
				JWTIssuer:      cfg.Auth.JWTIssuer,
				AllowedOrigins: origins,
				SecureCookies:  cfg.HTTP.SecureCookies,
			})

			srv := &http.Server{
				Addr:              ":" + cfg.HTTP.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				logger.Info(ctx).Str("addr", srv.Addr).Msg("server starting")
				serveErr <- srv.ListenAndServe()
			}()

			select {
			case err := <-serveErr:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("failed to start server: %w", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error(shutdownCtx).Err(err).Msg("server shutdown failed")
				}
			}
			stopSweeps()
			<-sweeps
			logger.Info(context.Background()).Msg("server shutdown complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "keep attendance history and sessions in memory instead of MongoDB")
	cmd.Flags().StringVar(&sessionsFile, "sessions-file", "", "JSON file of sessions to load into the catalog at startup")
	cmd.Flags().StringSliceVar(&origins, "allowed-origin", nil, "CORS origin allowed to call the API, repeatable (overrides ALLOWED_ORIGINS)")
	return cmd
}
