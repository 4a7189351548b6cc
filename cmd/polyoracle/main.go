// Command polyoracle is the entry point of the market resolution service. It
// loads configuration, sets up logging and runs the HTTP server or one of
// the one-shot batch commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/polyoracle/internal/app"
	"github.com/alanyoungcy/polyoracle/internal/config"
	"github.com/alanyoungcy/polyoracle/internal/crypto"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// cli carries state shared by subcommands.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	closeLog   func()
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "polyoracle",
		Short:         "Automated prediction market resolution",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.closeLog != nil {
				c.closeLog()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "config.toml", "path to configuration file")

	root.AddCommand(
		c.serveCmd(),
		c.resolveCmd(),
		c.executeCmd(),
		c.exportCmd(),
		keygenCmd(),
	)
	return root
}

// setup loads and validates configuration and installs the logger.
func (c *cli) setup(cmd *cobra.Command) error {
	path := c.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	logger, closeLog := newLogger(cfg.LogLevel, cfg.Log)
	slog.SetDefault(logger)
	c.logger = logger
	c.closeLog = closeLog

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))
	c.cfg = cfg
	return nil
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and live resolution feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(cmd); err != nil {
				return err
			}
			application := app.New(c.cfg, c.logger)
			defer application.Close()

			c.logger.Info("polyoracle starting", slog.String("config", c.configPath))
			err := application.Serve(cmd.Context())
			if errors.Is(err, context.Canceled) {
				c.logger.Info("polyoracle shut down gracefully")
				return nil
			}
			return err
		},
	}
}

func (c *cli) resolveCmd() *cobra.Command {
	var polymarketID, kalshiTicker string
	cmd := &cobra.Command{
		Use:   "resolve [markets.json|-]",
		Short: "Resolve a market or an array of markets and print the results",
		Example: `  polyoracle resolve markets.json
  polyoracle resolve --polymarket will-btc-hit-100k-in-2026
  polyoracle resolve --kalshi KXBTC-26MAR01`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourced := polymarketID != "" || kalshiTicker != ""
			if sourced == (len(args) == 1) || (polymarketID != "" && kalshiTicker != "") {
				return errors.New("pass exactly one of a markets file, --polymarket or --kalshi")
			}
			if err := c.setup(cmd); err != nil {
				return err
			}
			application := app.New(c.cfg, c.logger)
			defer application.Close()

			out := cmd.OutOrStdout()
			switch {
			case polymarketID != "":
				return application.ResolveFromSource(cmd.Context(), "polymarket", polymarketID, out)
			case kalshiTicker != "":
				return application.ResolveFromSource(cmd.Context(), "kalshi", kalshiTicker, out)
			default:
				return application.ResolveFile(cmd.Context(), args[0], out)
			}
		},
	}
	cmd.Flags().StringVar(&polymarketID, "polymarket", "", "resolve a Polymarket market by id or slug")
	cmd.Flags().StringVar(&kalshiTicker, "kalshi", "", "resolve a Kalshi market by ticker")
	return cmd
}

func (c *cli) executeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <request.json|->",
		Short: "Run the deterministic fetch and resolution for a parsed spec",
		Long:  `The input is a JSON object {"market": {...}, "spec": {...}} where spec is a deterministic spec produced by the parser.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(cmd); err != nil {
				return err
			}
			application := app.New(c.cfg, c.logger)
			defer application.Close()
			return application.ExecuteFile(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored results to S3 as JSONL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}
			if err := c.setup(cmd); err != nil {
				return err
			}
			application := app.New(c.cfg, c.logger)
			defer application.Close()

			key, n, err := application.Export(cmd.Context(), from)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d results to %s\n", n, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "24h", "window to export: a duration back from now or an RFC3339 time")
	return cmd
}

func keygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an encrypted oracle attestation key",
		Long:  "Generates a secp256k1 key, encrypts it with the password from POLYORACLE_KEY_PASSWORD and writes it to --out.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("POLYORACLE_KEY_PASSWORD")
			if password == "" {
				return errors.New("POLYORACLE_KEY_PASSWORD must be set")
			}
			blob, addr, err := crypto.GenerateKey(password)
			if err != nil {
				return err
			}
			f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if _, err := f.Write(blob); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", out, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "oracle address %s\nkey written to %s\n", addr, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "oracle.key.json", "output path; an existing file is never overwritten")
	return cmd
}

// parseSince accepts a duration ("72h") or an RFC3339 timestamp.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			d = -d
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since %q is neither a duration nor an RFC3339 time", s)
	}
	return t, nil
}
