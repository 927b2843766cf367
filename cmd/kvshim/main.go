// Command kvshim runs legacy-style commands against a configured backend
// driver through the compatibility client.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnorrsken/kvshim/compat"
	"github.com/mnorrsken/kvshim/internal/config"
	"github.com/mnorrsken/kvshim/internal/metrics"
)

// shutdownTimeout bounds how long closing the client may take
const shutdownTimeout = 10 * time.Second

var (
	version = "dev" // set at build time via -ldflags "-X main.version=..."

	configPath  string
	driverName  string
	addr        string
	debug       bool
	metricsAddr string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// the reply was already printed
		if !errors.Is(err, errCommandFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kvshim",
		Short:         "Run legacy key-value commands against Redis, PostgreSQL or memory",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML config file (default $KVSHIM_CONFIG)")
	flags.StringVar(&driverName, "driver", "", "Backend driver: redis, postgres or memory")
	flags.StringVar(&addr, "addr", "", "Comma-separated Redis addresses")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	root.AddCommand(newCallCmd(), newReplCmd(), newTailCmd())
	return root
}

// loadConfig applies command line flags over the file and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if driverName != "" {
		cfg.Driver = driverName
	}
	if addr != "" {
		cfg.RedisAddrs = strings.Split(addr, ",")
	}
	if debug {
		cfg.Debug = true
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	return cfg, cfg.Validate()
}

// session is an open client plus what has to be stopped with it.
type session struct {
	client  *compat.Client
	metrics *metrics.Server
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	d, err := cfg.OpenDriver(ctx)
	if err != nil {
		return nil, err
	}

	s := &session{}
	if cfg.MetricsAddr != "" {
		s.metrics = metrics.NewServer(cfg.MetricsAddr)
		if err := s.metrics.Start(); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		log.Printf("Metrics server listening on %s", cfg.MetricsAddr)
	}

	s.client = compat.New(d,
		compat.WithDebug(cfg.Debug),
		compat.WithPollInterval(cfg.PollInterval),
		compat.WithLazyConnect(true),
		compat.WithName("kvshim"),
	)
	if err := s.client.Connect(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to connect using %s driver: %w", cfg.Driver, err)
	}
	if cfg.Debug {
		log.Printf("[DEBUG] Connected using %s driver", cfg.Driver)
	}
	return s, nil
}

func (s *session) close() {
	done := make(chan struct{})
	go func() {
		s.client.Close()
		if s.metrics != nil {
			s.metrics.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Println("Shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM. A second signal exits
// immediately.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			if debug {
				log.Printf("[DEBUG] Received signal %v, shutting down", sig)
			}
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
			return
		}
		<-sigChan
		os.Exit(1)
	}()
	return ctx, cancel
}
