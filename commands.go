package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"attendguard/config"
	"attendguard/logger"
	"attendguard/model"
	"attendguard/services"
	"attendguard/storage"
	"attendguard/usecase"
	"attendguard/utils"
)

func buildPurgeCmd(getConfig func() *config.Config) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove restriction bindings older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			ctx := cmd.Context()

			store, err := storage.Open(ctx, storage.Options{
				Backend:        cfg.Store.Backend,
				Path:           cfg.Store.Path,
				RedisURL:       cfg.Store.RedisURL,
				RedisKeyPrefix: cfg.Store.RedisKeyPrefix,
				ConnectTimeout: cfg.Store.ConnectTimeout,
			})
			if err != nil {
				return err
			}
			defer store.Close()

			if maxAge <= 0 {
				maxAge = cfg.Attendance.RestrictionRetention
			}
			ledger := usecase.NewRestrictionLedger(store, nil, usecase.LedgerOptions{})
			report, err := usecase.NewHousekeeper(ledger, maxAge, 0).RunOnce(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("scanned %d scopes, removed %d entries and %d empty scopes (cutoff %s)\n",
				report.ScopesScanned, report.EntriesRemoved, report.ScopesRemoved, report.Cutoff.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "override RESTRICTION_RETENTION")
	return cmd
}

// sessionSeed is the on-disk form of a session; unlike the API it carries
// the code secret.
type sessionSeed struct {
	model.SessionEntry
	CodeSecret string `json:"code_secret"`
}

func seedSessions(ctx context.Context, catalog sessionStore, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read sessions file: %w", err)
	}
	var seeds []sessionSeed
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return fmt.Errorf("failed to decode sessions file: %w", err)
	}
	for i := range seeds {
		entry := seeds[i].SessionEntry
		entry.CodeSecret = seeds[i].CodeSecret
		if err := catalog.PutSession(ctx, &entry); err != nil {
			return fmt.Errorf("session %q: %w", entry.SessionID, err)
		}
	}
	logger.Info(ctx).Int("sessions", len(seeds)).Str("file", path).Msg("loaded sessions")
	return nil
}

func buildSessionCmd(getConfig func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the session catalog",
	}

	var entry model.SessionEntry
	var withCode bool
	put := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a session and its geofence",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, getConfig(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if withCode {
				entry.CodeSecret, err = a.svc.Codes.NewSecret(entry.SessionID)
				if err != nil {
					return err
				}
			}
			if err := a.catalog.PutSession(ctx, &entry); err != nil {
				return err
			}
			cmd.Printf("saved session %s\n", entry.SessionID)
			if entry.CodeSecret != "" {
				cmd.Printf("code secret: %s\n", entry.CodeSecret)
			}
			return nil
		},
	}
	put.Flags().StringVar(&entry.SessionID, "id", "", "session id")
	put.Flags().StringVar(&entry.Title, "title", "", "session title")
	put.Flags().StringVar(&entry.Location.ID, "location-id", "", "location id")
	put.Flags().StringVar(&entry.Location.Name, "location-name", "", "location name")
	put.Flags().Float64Var(&entry.Location.Center.Latitude, "lat", 0, "geofence center latitude")
	put.Flags().Float64Var(&entry.Location.Center.Longitude, "lng", 0, "geofence center longitude")
	put.Flags().Float64Var(&entry.Location.RadiusMeters, "radius", 50, "geofence radius in meters")
	put.Flags().BoolVar(&entry.Location.IsActive, "active", true, "accept attendance at this location")
	put.Flags().BoolVar(&withCode, "with-code", false, "require a rotating attendance code")
	_ = put.MarkFlagRequired("id")
	_ = put.MarkFlagRequired("location-id")

	var sessionID string
	code := &cobra.Command{
		Use:   "code",
		Short: "Print the current attendance code of a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, getConfig(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.catalog.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}
			if session.CodeSecret == "" {
				return fmt.Errorf("session %s does not use attendance codes", sessionID)
			}
			current, err := services.NewAttendanceCodes(nil).Current(session.CodeSecret)
			if err != nil {
				return err
			}
			cmd.Println(current)
			return nil
		},
	}
	code.Flags().StringVar(&sessionID, "id", "", "session id")
	_ = code.MarkFlagRequired("id")

	cmd.AddCommand(put, code)
	return cmd
}

func buildTokenCmd(getConfig func() *config.Config) *cobra.Command {
	var userID, role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			if cfg.Auth.JWTSecretKey == "" {
				return fmt.Errorf("JWT_SECRET_KEY is not set")
			}
			token, err := utils.GenerateAccessTokenWithRole(cfg.Auth.JWTSecretKey, cfg.Auth.JWTIssuer, userID, role, ttl)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the token")
	cmd.Flags().StringVar(&role, "role", "", "role claim, e.g. organizer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
