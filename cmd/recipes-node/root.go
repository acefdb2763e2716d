package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"recipe-swap/internal/appdata"
	"recipe-swap/internal/catalog"
	"recipe-swap/internal/discovery"
	recipesnode "recipe-swap/internal/recipes-node"
	"recipe-swap/internal/telemetry"
)

const envPrefix = "RECIPES"

const (
	flagBind         = "bind"
	flagStore        = "store"
	flagDataDir      = "data-dir"
	flagLogLevel     = "log-level"
	flagMDNSPort     = "mdns-port"
	flagMDNSInterval = "mdns-interval"
	flagMDNSTTL      = "mdns-ttl"
	flagNoMDNS       = "no-mdns"
	flagBootstrap    = "bootstrap"
	flagMetricsAddr  = "metrics-addr"
)

func NewRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "recipes-node",
		Short:         "Swap recipes with peers on the local network",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, level := configFromViper(v)
			return run(cmd.Context(), cfg, level)
		},
	}

	def := recipesnode.DefaultConfig()
	f := cmd.Flags()
	f.String(flagBind, def.Bind, "TCP listen address")
	f.String(flagStore, catalog.DefaultPath, "catalog file")
	f.String(flagDataDir, "", "directory for the peer book (default: next to the binary, or $"+appdata.EnvDataDir+")")
	f.String(flagLogLevel, "", "log level: debug, info, warn, error (default info, or $LOG_LEVEL)")
	f.Int(flagMDNSPort, def.MDNS.Port, "mDNS UDP port")
	f.Duration(flagMDNSInterval, def.MDNS.QueryInterval, "mDNS query interval")
	f.Duration(flagMDNSTTL, 0, "forget peers not seen for this long (default 3x interval)")
	f.Bool(flagNoMDNS, false, "disable local-link discovery")
	f.StringSlice(flagBootstrap, nil, "peer to dial at startup, /ip4/<ip>/tcp/<port>/p2p/<id> (repeatable)")
	f.String(flagMetricsAddr, "", "serve Prometheus metrics on this address")
	return cmd
}

// bindFlags makes every flag readable from RECIPES_<FLAG> as well.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(cmd.Flags())
}

func configFromViper(v *viper.Viper) (recipesnode.Config, string) {
	cfg := recipesnode.DefaultConfig()
	cfg.Bind = v.GetString(flagBind)
	cfg.StorePath = v.GetString(flagStore)
	cfg.DataDir = v.GetString(flagDataDir)
	cfg.NoMDNS = v.GetBool(flagNoMDNS)
	cfg.MetricsAddr = v.GetString(flagMetricsAddr)
	cfg.MDNS.Port = v.GetInt(flagMDNSPort)
	cfg.MDNS.QueryInterval = v.GetDuration(flagMDNSInterval)
	cfg.MDNS.TTL = v.GetDuration(flagMDNSTTL)
	for _, b := range v.GetStringSlice(flagBootstrap) {
		if b = strings.TrimSpace(b); b != "" {
			cfg.Bootstrap = append(cfg.Bootstrap, b)
		}
	}
	if cfg.MDNS.QueryInterval <= 0 {
		cfg.MDNS.QueryInterval = discovery.DefaultInterval
	}

	level := v.GetString(flagLogLevel)
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	return cfg, level
}

func run(ctx context.Context, cfg recipesnode.Config, level string) error {
	logger, err := telemetry.NewStderrLogger(level)
	if err != nil {
		return err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = appdata.Dir()
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := recipesnode.New(cfg, logger, recipesnode.NewStdPrinter(os.Stdout))
	if err != nil {
		return err
	}
	defer func() {
		done := make(chan struct{})
		go func() {
			_ = app.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn("shutdown timed out")
		}
	}()

	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Run(ctx, recipesnode.ReadLines(ctx, os.Stdin))
}
