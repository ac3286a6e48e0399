package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civiclab/reportd/internal/catalog"
	"github.com/civiclab/reportd/internal/executor"
	"github.com/civiclab/reportd/internal/preset"
	"github.com/civiclab/reportd/internal/server"
	"github.com/civiclab/reportd/internal/session"
	"github.com/civiclab/reportd/internal/source"
	"github.com/civiclab/reportd/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port    int
		host    string
		dev     bool
		dataDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the report API server",
		Long:  "Start the HTTP server that exposes the report designer, saved queries, and export endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev, dataDir)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory for the saved-query store (default: ~/.reportd)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool, dataDir string) error {
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	src, err := openSource()
	if err != nil {
		return err
	}
	logger.Info("data source connected", "driver", src.DriverName())

	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = home + "/.reportd"
	}
	repo, err := store.NewStore(dataDir)
	if err != nil {
		src.Close()
		return fmt.Errorf("init saved-query store: %w", err)
	}
	logger.Info("saved-query store initialized", "path", dataDir)

	presets, err := preset.Load()
	if err != nil {
		src.Close()
		repo.Close()
		return fmt.Errorf("load presets: %w", err)
	}
	logger.Info("presets loaded", "count", len(presets.All()))

	cat := catalog.New(src, viper.GetStringSlice("source.tables"), logger)

	execCfg := executor.Config{
		RowCap:  viper.GetInt("executor.row_cap"),
		Timeout: viper.GetDuration("executor.timeout"),
	}
	exec := executor.New(src, cat, execCfg, logger)

	sessionTTL := viper.GetDuration("session.ttl")
	sessions := session.NewManager(sessionTTL, logger)

	srvCfg := server.DefaultConfig()
	srvCfg.Host = host
	srvCfg.Port = port
	if origins := viper.GetStringSlice("server.cors_origins"); len(origins) > 0 {
		srvCfg.CORSOrigins = origins
	}
	if rpm := viper.GetInt("server.requests_per_minute"); rpm > 0 {
		srvCfg.RequestsPerMinute = rpm
	}
	if pps := viper.GetInt("server.previews_per_second"); pps > 0 {
		srvCfg.PreviewsPerSecond = pps
	}
	if d := viper.GetDuration("server.shutdown_timeout"); d > 0 {
		srvCfg.ShutdownTimeout = d
	}

	srv := server.New(srvCfg, src, cat, exec, sessions, repo, presets, logger)

	fmt.Printf("→ reportd\n")
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ OpenAPI: http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Health:  http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}

// openSource connects the reporting data source from config. The DSN is
// required; everything else has defaults.
func openSource() (source.Source, error) {
	driver := viper.GetString("source.driver")
	if driver == "" {
		driver = "postgres"
	}
	dsn := viper.GetString("source.dsn")
	if dsn == "" {
		return nil, fmt.Errorf("source.dsn is required (set it in reportd.yaml or REPORTD_SOURCE_DSN)")
	}

	cfg := source.Config{
		Driver:          driver,
		DSN:             dsn,
		SchemaName:      viper.GetString("source.schema"),
		MaxOpenConns:    viper.GetInt("source.max_open_conns"),
		MaxIdleConns:    viper.GetInt("source.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("source.conn_max_lifetime"),
		ConnMaxIdleTime: viper.GetDuration("source.conn_max_idle_time"),
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return source.Open(cfg)
}
