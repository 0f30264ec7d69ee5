package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/cuemby/beacon/pkg/worker"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Record events read from stdin until interrupted",
	Long: `Read one JSON event per line from stdin and record it. Flushes run on the
normal debounce schedule. Metrics and health endpoints are served on
--metrics-addr when set.

Line format:
  {"kind": "event", "name": "Purchase", "props": {"Amount": 12}}

Kinds: event, launch, screen, profile, basic_profile, ping, viewed, fetch, vars.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "", "Address for /metrics and /health (overrides config)")
}

// line is one record read by serve
type line struct {
	Kind  string          `json:"kind"`
	Name  string          `json:"name"`
	Props json.RawMessage `json:"props"`
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.MetricsAddr = addr
	}

	c, err := openCollector(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	logger := log.WithComponent("serve")

	errCh := make(chan error, 2)
	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics server started")
	}

	go func() {
		errCh <- readLines(cmd.Context(), c, os.Stdin)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Input stopped")
		}
		if c.syncer != nil {
			// input is done: upload now rather than leave the tail for the next run
			if sent, err := c.flushAll(cmd.Context()); err != nil {
				logger.Warn().Err(err).Int("sent", sent).Msg("Final flush failed")
			}
		}
	}

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return nil
}

// readLines records every line of r. Bad lines are logged and skipped.
func readLines(ctx context.Context, c *collector, r io.Reader) error {
	logger := log.WithComponent("serve")
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		h, err := dispatch(c, []byte(text))
		if err != nil {
			logger.Warn().Err(err).Msg("Skipping input line")
			continue
		}
		if _, err := await(ctx, h); err != nil {
			logger.Warn().Err(err).Msg("Record failed")
		}
	}
	return scanner.Err()
}

func dispatch(c *collector, data []byte) (*worker.Handle, error) {
	var l line
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	props := types.NewPayload()
	if len(l.Props) > 0 && string(l.Props) != "null" {
		if err := json.Unmarshal(l.Props, props); err != nil {
			return nil, fmt.Errorf("invalid props: %w", err)
		}
	}

	switch l.Kind {
	case "event", "":
		return c.coord.RecordEvent(l.Name, props), nil
	case "launch":
		return c.coord.RecordAppLaunched(), nil
	case "screen":
		return c.coord.RecordScreen(l.Name), nil
	case "profile":
		return c.coord.PushProfile(props), nil
	case "basic_profile":
		return c.coord.PushBasicProfile(props), nil
	case "ping":
		return c.coord.RecordPing(), nil
	case "viewed":
		return c.coord.PushNotificationViewed(props), nil
	case "fetch":
		return c.coord.FetchVariables(), nil
	case "vars":
		return c.coord.DefineVariables(props), nil
	}
	return nil, fmt.Errorf("unknown kind %q", l.Kind)
}
