package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	goAccounts "github.com/MrEthical07/goAccounts"
	"github.com/MrEthical07/goAccounts/internal/app"
	"github.com/MrEthical07/goAccounts/internal/server"
	"github.com/MrEthical07/goAccounts/metrics/export/prometheus"
	"github.com/MrEthical07/goAccounts/store/memory"
	client "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cli struct {
	envFile  string
	settings settings
	log      *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "goaccounts",
		Short:         "GraphQL API server with field-level authorization",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadDotEnv(c.envFile); err != nil {
				return err
			}
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			c.settings = loadSettings(v)
			c.log, err = c.settings.logger()
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("environment", "development", "deployment environment; production enables hardened checks")
	pf.String("database-url", "", "PostgreSQL DSN for the users table; in-memory when empty")
	pf.String("redis-addr", "", "Redis address of the session registry")
	pf.Bool("embedded-redis", false, "run an in-process Redis for the session registry")
	pf.String("validation-mode", goAccounts.ModeJWTOnly.String(), "jwt_only or strict")
	pf.String("site-url", "", "token issuer; defaults by environment")
	pf.Duration("token-ttl", goAccounts.DefaultTokenTTL, "lifetime of issued tokens")

	root.AddCommand(
		c.serveCmd(),
		c.tokenCmd(),
		c.userCmd(),
		c.schemaCmd(),
	)
	return root
}

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the GraphQL API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := openDeps(ctx, c.settings, c.log)
			if err != nil {
				return err
			}
			defer d.Close()

			logSecurityReport(c.log, d.engine.SecurityReport())

			schema, err := app.Schema(d.engine)
			if err != nil {
				return err
			}

			reg := client.NewRegistry()
			reg.MustRegister(
				prometheus.NewExporter(d.engine),
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			checks := map[string]server.Checker{}
			if d.postgres != nil {
				checks["database"] = d.postgres
			}

			h, err := server.NewRouter(server.Options{
				Engine:         d.engine,
				Schema:         schema,
				Logger:         c.log.Named("http"),
				Checks:         checks,
				Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				AllowedOrigins: c.settings.AllowedOrigins,
			})
			if err != nil {
				return err
			}
			return server.Run(ctx, server.New(c.settings.ListenAddr, h), c.log)
		},
	}
	cmd.Flags().String("listen-addr", ":4000", "HTTP listen address")
	cmd.Flags().String("allowed-origins", "", "comma separated origins allowed to call the API with credentials")
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Issue tokens"}
	cmd.AddCommand(&cobra.Command{
		Use:   "issue <email>",
		Short: "Issue a token for an existing user without a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := openDeps(ctx, c.settings, c.log)
			if err != nil {
				return err
			}
			defer d.Close()

			users, err := d.users()
			if err != nil {
				return err
			}
			user, err := users.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(args[0])))
			if err != nil {
				return fmt.Errorf("find %s: %w", args[0], err)
			}
			result, err := d.engine.IssueToken(ctx, user)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "token\t%s\n", result.Token)
			fmt.Fprintf(w, "expires\t%s\n", result.ExpiresAt.UTC().Format(time.RFC3339))
			fmt.Fprintf(w, "session\t%s\n", result.SessionID)
			return w.Flush()
		},
	})
	return cmd
}

func (c *cli) userCmd() *cobra.Command {
	var (
		email    string
		username string
		password string
		admin    bool
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user in the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.settings.DatabaseURL == "" {
				return errors.New("user add needs DATABASE_URL; in-memory users do not outlive the command")
			}
			ctx := cmd.Context()
			d, err := openDeps(ctx, c.settings, c.log)
			if err != nil {
				return err
			}
			defer d.Close()

			user, err := d.engine.CreateUser(ctx, goAccounts.User{Email: email, Username: username, IsAdmin: admin}, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), user.ID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "login email")
	add.Flags().StringVar(&username, "username", "", "display name")
	add.Flags().StringVar(&password, "password", "", "initial password")
	add.Flags().BoolVar(&admin, "admin", false, "grant admin rights")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("password")

	cmd := &cobra.Command{Use: "user", Short: "Manage users"}
	cmd.AddCommand(add)
	return cmd
}

func (c *cli) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the composed GraphQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := schemaEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			schema, err := app.Schema(engine)
			if err != nil {
				return err
			}
			schema.WriteSDL(cmd.OutOrStdout())
			return nil
		},
	}
}

// schemaEngine builds a throwaway engine so the schema can be printed
// without any configuration.
func schemaEngine() (*goAccounts.Engine, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	users, err := memory.New()
	if err != nil {
		return nil, err
	}
	cfg := goAccounts.DefaultConfig()
	cfg.Token.Secret = []byte(hex.EncodeToString(secret))
	return goAccounts.New().WithConfig(cfg).WithUserStore(users).Build()
}

func logSecurityReport(log *zap.Logger, r goAccounts.SecurityReport) {
	log.Info("security report",
		zap.Bool("production", r.ProductionMode),
		zap.String("signing_algorithm", string(r.SigningAlgorithm)),
		zap.Stringer("validation_mode", r.ValidationMode),
		zap.Duration("token_ttl", r.TokenTTL),
		zap.String("issuer", r.Issuer),
		zap.Bool("registry", r.RegistryEnabled),
		zap.Bool("logout_revokes", r.LogoutRevokes),
		zap.Int("secret_bytes", r.SecretBytes),
		zap.Uint32("argon2_memory_kib", r.Argon2.Memory),
		zap.Uint32("argon2_time", r.Argon2.Time),
		zap.Bool("events_async", r.EventsAsync),
		zap.Bool("metrics", r.MetricsEnabled),
	)
	if !r.LogoutRevokes {
		log.Warn("logout does not revoke tokens in jwt_only mode; use --validation-mode=strict with a redis registry")
	}
}
