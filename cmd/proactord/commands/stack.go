package commands

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/proactor/internal/chat"
	"github.com/marmos91/proactor/internal/filexfer"
	"github.com/marmos91/proactor/internal/logger"
	"github.com/marmos91/proactor/pkg/adapter"
	"github.com/marmos91/proactor/pkg/config"
	"github.com/marmos91/proactor/pkg/metrics/prometheus"
	"github.com/marmos91/proactor/pkg/proactor"
)

// stack is one dispatcher shared by every enabled server.
type stack struct {
	cfg        *config.Config
	dispatcher *proactor.Dispatcher
	adapters   []*adapter.BaseAdapter
	relay      *chat.Relay
	files      *filexfer.Server
}

// newStack builds the dispatcher and the enabled servers. Metrics are
// recorded only if the registry was initialized beforehand.
func newStack(cfg *config.Config) (*stack, error) {
	opts := []proactor.Option{
		proactor.WithRecoverPanics(cfg.Dispatcher.RecoverPanics),
		proactor.WithMetrics(prometheus.NewDispatcherMetrics()),
	}
	if cfg.Dispatcher.MaxWorkers > 0 {
		opts = append(opts, proactor.WithSpawner(proactor.NewLimitedSpawner(int64(cfg.Dispatcher.MaxWorkers))))
	}

	s := &stack{
		cfg:        cfg,
		dispatcher: proactor.New(proactor.NewRegistry(), opts...),
	}

	if cfg.Chat.Enabled {
		s.relay = chat.NewRelay(
			chat.WithBufferSize(int(cfg.Chat.BufferSize.Int64())),
			chat.WithMetrics(prometheus.NewChatMetrics()),
		)
		if err := s.addAdapter(cfg.Chat.ListenerConfig, s.relay); err != nil {
			return nil, err
		}
	}

	if cfg.Files.Enabled {
		files, err := filexfer.NewServer(cfg.Files.Root,
			filexfer.WithMaxBodySize(cfg.Files.MaxBodySize.Int64()),
			filexfer.WithChunkSize(cfg.Files.ChunkSize),
			filexfer.WithServerMetrics(prometheus.NewFileMetrics()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open files root: %w", err)
		}
		s.files = files
		if err := s.addAdapter(cfg.Files.ListenerConfig, files); err != nil {
			_ = files.Close()
			return nil, err
		}
	}

	if len(s.adapters) == 0 {
		return nil, errors.New("no server enabled: set chat.enabled or files.enabled")
	}
	return s, nil
}

func (s *stack) addAdapter(lc config.ListenerConfig, p adapter.Protocol) error {
	a, err := adapter.New(adapter.BaseConfig{
		BindAddress:     lc.BindAddress,
		Port:            lc.Port,
		ReusePort:       lc.ReusePort,
		ShutdownTimeout: s.cfg.ShutdownTimeout,
	}, p, s.dispatcher)
	if err != nil {
		return fmt.Errorf("failed to create %s server: %w", p.Name(), err)
	}
	a.Metrics = prometheus.NewConnectionMetrics(p.Name())
	s.adapters = append(s.adapters, a)
	return nil
}

// run serves until ctx is cancelled or a server fails, then drains the
// dispatcher. Adapters close their listeners first so no new work can be
// registered while the dispatcher waits.
func (s *stack) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range s.adapters {
		g.Go(func() error { return a.Serve(gctx) })
	}
	serveErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if serveErr != nil {
		errs = append(errs, serveErr)
	}
	if err := s.dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Dispatcher shutdown incomplete", "active", s.dispatcher.Active(), "error", err)
		errs = append(errs, err)
	}
	if s.files != nil {
		if err := s.files.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ready is closed once every adapter has bound its listener or failed to.
func (s *stack) ready() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		for _, a := range s.adapters {
			<-a.ListenerReady
		}
		close(ch)
	}()
	return ch
}

// addr returns the bound address of the named server, or "".
func (s *stack) addr(protocol string) string {
	for _, a := range s.adapters {
		if a.Protocol() == protocol {
			return a.Addr()
		}
	}
	return ""
}
