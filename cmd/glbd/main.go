package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"glbd/internal/config"
)

// Environment variables consulted for flag defaults.
const (
	envConfig    = "GLBD_CONFIG"
	envAddr      = "GLBD_ADDR"
	envLogLevel  = "GLBD_LOG_LEVEL"
	envLogFormat = "GLBD_LOG_FORMAT"
	envAccessLog = "GLBD_ACCESS_LOG"
	envMaxBodyMB = "GLBD_MAX_BODY_MB"
	envCORS      = "GLBD_CORS_ORIGINS"
)

const (
	defaultAddr            = ":8080"
	defaultShutdownTimeout = 30 * time.Second
)

// options carries command line state. Flags override the config file; the
// config file overrides built-in defaults.
type options struct {
	configPath  string
	addr        string
	logLevel    string
	logFormat   string
	accessLog   string
	maxBodyMB   int
	corsOrigins string
	warmup      bool
}

func defaultOptions() options {
	o := options{
		configPath:  os.Getenv(envConfig),
		addr:        envOr(envAddr, defaultAddr),
		logLevel:    envOr(envLogLevel, "info"),
		logFormat:   envOr(envLogFormat, "console"),
		accessLog:   envOr(envAccessLog, "info"),
		corsOrigins: os.Getenv(envCORS),
	}
	if v, err := strconv.Atoi(os.Getenv(envMaxBodyMB)); err == nil {
		o.maxBodyMB = v
	}
	return o
}

func main() {
	opts := defaultOptions()
	if err := buildRootCmdWith(&opts).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "glbd:", err)
		os.Exit(1)
	}
}

// buildRootCmdWith constructs the command tree bound to opts. Running the
// root without a subcommand starts the server.
func buildRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "glbd",
		Short:         "GLB mesh and texture compression service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", opts.configPath, "Config file (.yaml, .json or .toml; defaults GLBD_CONFIG)")
	pf.StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level: debug|info|warn|error (defaults GLBD_LOG_LEVEL or info)")
	pf.StringVar(&opts.logFormat, "log-format", opts.logFormat, "Log format: console|json (defaults GLBD_LOG_FORMAT or console)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()), opts.warmup)
		},
	}
	serveFlags := func(cmd *cobra.Command) {
		f := cmd.Flags()
		f.StringVar(&opts.addr, "addr", opts.addr, "HTTP listen address (defaults GLBD_ADDR or :8080)")
		f.StringVar(&opts.accessLog, "access-log", opts.accessLog, "Access log level: off|error|info|debug (defaults GLBD_ACCESS_LOG or info)")
		f.IntVar(&opts.maxBodyMB, "max-body-mb", opts.maxBodyMB, "Maximum upload size in MiB (0 keeps the built-in limit)")
		f.StringVar(&opts.corsOrigins, "cors-origins", opts.corsOrigins, "Comma-separated CORS origins; enables CORS when set")
		f.BoolVar(&opts.warmup, "warmup", false, "Load the codec modules before accepting requests")
	}
	serveFlags(serve)
	serveFlags(root)
	root.RunE = serve.RunE

	analyze := &cobra.Command{
		Use:     "analyze <file.glb>",
		Short:   "Print the analysis and recommended strategy for a GLB file",
		Example: "  glbd analyze scene.glb\n  glbd analyze --ignore-draco scene.glb",
		Args:    cobra.ExactArgs(1),
	}
	ignoreDraco := analyze.Flags().Bool("ignore-draco", false, "Plan as if no Draco compression were present")
	analyze.RunE = func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd.OutOrStdout(), args[0], *ignoreDraco)
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Report whether the external encoders can be located",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runCheck(cmd.OutOrStdout(), cfg)
		},
	}

	root.AddCommand(serve, analyze, check)
	return root
}

// resolve merges the config file, explicit flags and environment defaults
// into one validated configuration.
func (o *options) resolve(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	override := func(flag, env string) bool {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			return true
		}
		return os.Getenv(env) != ""
	}
	if override("addr", envAddr) || cfg.Addr == "" {
		cfg.Addr = o.addr
	}
	if override("log-level", envLogLevel) || cfg.LogLevel == "" {
		cfg.LogLevel = o.logLevel
	}
	if override("log-format", envLogFormat) || cfg.LogFormat == "" {
		cfg.LogFormat = o.logFormat
	}
	if override("access-log", envAccessLog) || cfg.AccessLog == "" {
		cfg.AccessLog = o.accessLog
	}
	if override("max-body-mb", envMaxBodyMB) {
		cfg.MaxBodyMB = o.maxBodyMB
	}
	if override("cors-origins", envCORS) {
		if origins := splitCSV(o.corsOrigins); len(origins) > 0 {
			cfg.CORS.Enabled = true
			cfg.CORS.Origins = origins
		}
	}
	if cfg.ShutdownTimeoutSeconds <= 0 {
		cfg.ShutdownTimeoutSeconds = int(defaultShutdownTimeout / time.Second)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "glbd").Logger()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
