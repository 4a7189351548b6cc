package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyoracle/internal/domain"
	"github.com/alanyoungcy/polyoracle/internal/server"
	"github.com/alanyoungcy/polyoracle/internal/server/handler"
	"github.com/alanyoungcy/polyoracle/internal/service"
)

// ErrNoArchive is returned by Export when S3 archiving is disabled.
var ErrNoArchive = errors.New("app: s3 archive not configured")

// Serve starts the HTTP front door, the live feed hub and the bus relay, and
// blocks until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	deps, err := a.Dependencies(ctx)
	if err != nil {
		return err
	}
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: server disabled in configuration")
	}
	a.logger.InfoContext(ctx, "starting resolution server",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("store", a.cfg.Store.Driver),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("s3", a.cfg.S3.Enabled),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Hub.Run(ctx)
	})
	if deps.Bus != nil {
		g.Go(func() error {
			return deps.Service.RelayBus(ctx)
		})
	}

	signer := ""
	if deps.Signer != nil {
		signer = deps.Signer.Address().Hex()
	}
	sc := a.cfg.Server
	srv := server.NewServer(server.Config{
		Port:         sc.Port,
		CORSOrigins:  sc.CORSOrigins,
		APIKey:       sc.APIKey,
		RateLimit:    sc.RateLimit,
		RateWindow:   sc.RateWindow.Duration,
		WriteTimeout: sc.ResolveTimeout.Duration + 30*time.Second,
	}, server.Handlers{
		Index:  handler.NewIndexHandler(deps.Service.Sources(), signer),
		Health: handler.NewHealthHandler(deps.Health, a.logger),
		Resolve: handler.NewResolveHandler(deps.Service, handler.ResolveConfig{
			MaxBatchSize: sc.MaxBatchSize,
			Timeout:      sc.ResolveTimeout.Duration,
		}, a.logger),
		Results: handler.NewResultHandler(deps.Service, a.logger),
	}, deps.Hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// ResolveFile resolves the markets in path ("-" for stdin) and writes the
// batch items to out as indented JSON.
func (a *App) ResolveFile(ctx context.Context, path string, out io.Writer) error {
	markets, err := readMarkets(path)
	if err != nil {
		return err
	}
	deps, err := a.Dependencies(ctx)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "resolving batch", slog.Int("markets", len(markets)))
	items := deps.Service.ResolveBatch(ctx, markets)
	return writeJSON(out, items)
}

// ResolveFromSource loads one market from a venue, resolves it and writes
// the market and result to out.
func (a *App) ResolveFromSource(ctx context.Context, venue, id string, out io.Writer) error {
	deps, err := a.Dependencies(ctx)
	if err != nil {
		return err
	}
	m, result, err := deps.Service.ResolveFromSource(ctx, venue, id)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{"market": m, "result": result})
}

// ExecuteFile runs the deterministic step for a {"market", "spec"} document.
func (a *App) ExecuteFile(ctx context.Context, path string, out io.Writer) error {
	raw, err := readInput(path)
	if err != nil {
		return err
	}
	var doc struct {
		Market *domain.Market            `json:"market"`
		Spec   *domain.DeterministicSpec `json:"spec"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("app: decode %s: %w", path, err)
	}
	if doc.Market == nil || doc.Spec == nil {
		return fmt.Errorf("app: %s must contain market and spec", path)
	}

	deps, err := a.Dependencies(ctx)
	if err != nil {
		return err
	}
	result, err := deps.Service.Execute(ctx, *doc.Market, *doc.Spec)
	if err != nil {
		return err
	}
	return writeJSON(out, result)
}

// Export writes every stored result resolved since the given time to S3 as
// JSONL and returns the object key and row count.
func (a *App) Export(ctx context.Context, since time.Time) (string, int, error) {
	deps, err := a.Dependencies(ctx)
	if err != nil {
		return "", 0, err
	}
	if deps.Archiver == nil {
		return "", 0, ErrNoArchive
	}
	if deps.Store == nil {
		return "", 0, service.ErrNoStore
	}
	key, n, err := deps.Archiver.Export(ctx, deps.Store, since)
	if err != nil {
		return "", 0, err
	}
	a.logger.InfoContext(ctx, "results exported", slog.String("key", key), slog.Int("rows", n))
	return key, n, nil
}

// readMarkets decodes a single market object or an array of markets.
func readMarkets(path string) ([]domain.Market, error) {
	raw, err := readInput(path)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("app: %s is empty", path)
	}

	if raw[0] == '[' {
		var markets []domain.Market
		if err := json.Unmarshal(raw, &markets); err != nil {
			return nil, fmt.Errorf("app: decode markets from %s: %w", path, err)
		}
		return markets, nil
	}
	var m domain.Market
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("app: decode market from %s: %w", path, err)
	}
	return []domain.Market{m}, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("app: read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("app: read %s: %w", path, err)
	}
	return raw, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("app: write output: %w", err)
	}
	return nil
}
