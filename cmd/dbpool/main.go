package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/dbpool/internal/workload"
	"github.com/ajitpratap0/dbpool/pkg/config"
	"github.com/ajitpratap0/dbpool/pkg/logger"
	"github.com/ajitpratap0/dbpool/pkg/sqldriver"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	root := &cobra.Command{
		Use:   "dbpool",
		Short: "dbpool - bounded database connection pool",
		Long: `dbpool fronts a database/sql driver with a fixed-capacity connection pool.
Connections are opened lazily, reused after release, and never exceed the configured capacity.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "Path to YAML configuration file")
	root.PersistentFlags().String("name", "", "Pool name used in logs")
	root.PersistentFlags().String("driver", "", "database/sql driver name (mysql, pgx, snowflake)")
	root.PersistentFlags().String("dsn", "", "Target DSN in the driver's format")
	root.PersistentFlags().String("user", "", "Database user (overrides the DSN)")
	root.PersistentFlags().String("password", "", "Database password (prefer DBPOOL_PASSWORD)")
	root.PersistentFlags().Int("capacity", 0, "Maximum number of concurrently leased connections")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-encoding", "", "Log encoding (json, console)")

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dbpool v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// Drivers command lists what the binary can connect to
	root.AddCommand(&cobra.Command{
		Use:   "drivers",
		Short: "List registered database drivers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Registered drivers:")
			for _, name := range sql.Drivers() {
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Open one pooled connection and ping it",
		Long: `Build a pool from the configuration, lease a single connection, ping it and
return it to the pool. Prints the pool statistics as JSON.

Example:
  dbpool check --driver pgx --dsn postgres://localhost:5432/app --user app`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cfg)
		},
	})

	execCmd := &cobra.Command{
		Use:   "exec",
		Short: "Run a query workload through the pool",
		Long: `Execute one SQL statement repeatedly from several workers. Every execution
leases a connection from the pool and returns it afterwards, so the number of
open connections never exceeds the pool capacity.

Example:
  dbpool exec --config dbpool.yaml --query "SELECT 1" --workers 16 --iterations 1000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runExec(cmd.Context(), cfg)
		},
	}
	execCmd.Flags().String("query", "", "SQL statement to execute")
	execCmd.Flags().Int("workers", 0, "Number of concurrent workers")
	execCmd.Flags().Int("iterations", 0, "Total number of executions")
	execCmd.Flags().Float64("rate", 0, "Maximum executions per second (0 = unlimited)")
	execCmd.Flags().Duration("timeout", 0, "Workload timeout")
	root.AddCommand(execCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the optional YAML file and overlays DBPOOL_* environment
// variables and explicitly set flags on top of it.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DBPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = config.Parse(data); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
	}

	overlayString(v, "name", &cfg.Pool.Name)
	overlayString(v, "driver", &cfg.Pool.Driver)
	overlayString(v, "dsn", &cfg.Pool.DSN)
	overlayString(v, "user", &cfg.Pool.User)
	overlayString(v, "password", &cfg.Pool.Password)
	if v.IsSet("capacity") {
		cfg.Pool.Capacity = v.GetInt("capacity")
	}
	overlayString(v, "log-level", &cfg.Logging.Level)
	overlayString(v, "log-encoding", &cfg.Logging.Encoding)

	overlayString(v, "query", &cfg.Workload.Query)
	if v.IsSet("workers") {
		cfg.Workload.Workers = v.GetInt("workers")
	}
	if v.IsSet("iterations") {
		cfg.Workload.Iterations = v.GetInt("iterations")
	}
	if v.IsSet("rate") {
		cfg.Workload.RatePerSec = v.GetFloat64("rate")
	}
	if v.IsSet("timeout") {
		cfg.Workload.Timeout = v.GetDuration("timeout")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func overlayString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

// runCheck leases one connection, pings it and gives it back.
func runCheck(ctx context.Context, cfg *config.Config) error {
	log := logger.With(zap.String("component", "dbpool-cli"))
	defer func() { _ = logger.Sync() }()

	pool, factory, err := sqldriver.OpenPool(cfg.Pool, log)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer func() {
		if err := factory.Close(); err != nil {
			log.Warn("failed to close factory", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	h, err := pool.Acquire()
	if err != nil {
		return fmt.Errorf("failed to lease connection: %w", err)
	}
	pingErr := h.PingContext(ctx)
	if err := h.Close(); err != nil {
		return fmt.Errorf("failed to return connection: %w", err)
	}
	if pingErr != nil {
		return fmt.Errorf("ping failed: %w", pingErr)
	}

	log.Info("connection check succeeded", zap.String("driver", cfg.Pool.Driver))
	return printJSON(pool.Stats())
}

// runExec runs the configured workload and prints its result.
func runExec(ctx context.Context, cfg *config.Config) error {
	log := logger.With(zap.String("component", "dbpool-cli"))
	defer func() { _ = logger.Sync() }()

	if cfg.Workload.Query == "" {
		return fmt.Errorf("configuration error: workload.query is required")
	}

	pool, factory, err := sqldriver.OpenPool(cfg.Pool, log)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer func() {
		if err := factory.Close(); err != nil {
			log.Warn("failed to close factory", zap.Error(err))
		}
	}()

	if cfg.Workload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Workload.Timeout)
		defer cancel()
	}

	runner := workload.NewRunner(pool, workload.Config{
		Query:      cfg.Workload.Query,
		Workers:    cfg.Workload.Workers,
		Iterations: cfg.Workload.Iterations,
		RatePerSec: cfg.Workload.RatePerSec,
	}, log)

	result, err := runner.Run(ctx)
	if result != nil {
		if perr := printJSON(result); perr != nil {
			log.Warn("failed to print result", zap.Error(perr))
		}
	}
	if err != nil {
		return fmt.Errorf("workload failed: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
