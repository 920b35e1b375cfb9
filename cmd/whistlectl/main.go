package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/whistlectl/internal/api"
	"codeberg.org/mutker/whistlectl/internal/auth"
	"codeberg.org/mutker/whistlectl/internal/binding"
	"codeberg.org/mutker/whistlectl/internal/config"
	"codeberg.org/mutker/whistlectl/internal/engine"
	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/events"
	"codeberg.org/mutker/whistlectl/internal/extractor"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"codeberg.org/mutker/whistlectl/internal/pid"
	"codeberg.org/mutker/whistlectl/internal/state"
	"codeberg.org/mutker/whistlectl/internal/whistle"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse log level: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Str("file", cfg.ConfigFile()).Msg("Config loaded")

	if err := pid.Write(); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("failed to write PID file")
		}
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg, level); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("error in main loop")
		} else {
			logger.Error().Err(err).Msg("error in main loop")
		}
	}
	cleanup()
}

// daemon holds the wired components shared by the reload handlers
type daemon struct {
	authCtx  *auth.Context
	resolver *binding.Resolver
	engine   *engine.Engine
}

func run(ctx context.Context, cfg *config.Config, level logger.LogLevel) error {
	errFactory := errors.New()

	authCtx := auth.NewContext()
	setCredentials(authCtx, cfg)

	client, err := whistle.NewClient(cfg.GetAPIURL(),
		whistle.WithTimeout(time.Duration(cfg.RequestTimeout)*time.Second))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	tokens := auth.NewManager(authCtx, client)

	bus := events.New()
	registry := binding.NewRegistry(bus)
	resolver := binding.NewResolver(tokens, binding.NewDeviceResolver(client), registry)

	memory := state.NewMemoryStore()
	store, err := state.NewStore(state.Config{
		Enabled:   cfg.State.Enabled,
		DBPath:    cfg.State.DBPath,
		BackupDir: cfg.State.BackupDir,
	}, logger.New("state"))
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	items, err := store.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load stored item states")
	}
	memory.Seed(items)

	publishers := state.Fanout{memory, store}
	if cfg.Redis.Addr != "" {
		redisPub, err := state.NewRedisPublisher(ctx, state.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			_ = publishers.Close()
			return errFactory.Wrap(errors.ErrInitApp, err)
		}
		publishers = append(publishers, redisPub)
	}
	defer func() {
		if err := publishers.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close state publishers")
		}
	}()

	onRemoved := func(name string) {
		memory.Forget(name)
		if err := store.Delete(ctx, name); err != nil {
			logger.Warn().Err(err).Str("binding", name).Msg("Failed to delete stored item state")
		}
	}
	if err := bus.SubscribeAsync(events.BindingRemoved, onRemoved, false); err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	eng, err := engine.New(registry, tokens, extractor.Default(client), publishers,
		engine.WithInterval(time.Duration(cfg.GetRefresh())*time.Millisecond),
		engine.WithConcurrency(cfg.GetConcurrency()),
		engine.WithBus(bus),
	)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	d := &daemon{authCtx: authCtx, resolver: resolver, engine: eng}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := eng.Run(gctx); err != nil {
			return errFactory.Wrap(errors.ErrMainLoop, err)
		}
		return nil
	})

	g.Go(func() error {
		d.loadBindings(gctx, cfg.GetBindingsFile())
		return nil
	})

	if cfg.ConfigFile() != "" {
		err := cfg.Watch(gctx, func(next *config.Config) {
			d.reload(gctx, next)
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Config changes will not be picked up")
		}
	}

	if listen := cfg.GetListen(); listen != "" {
		srv, err := api.New(gctx, api.Options{
			Items:     memory,
			Bindings:  registry,
			Resolver:  resolver,
			Refresher: eng,
			Debug:     level == logger.DebugLevel,
		})
		if err != nil {
			return errFactory.Wrap(errors.ErrInitApp, err)
		}
		g.Go(func() error {
			return srv.ListenAndServe(gctx, listen)
		})
	}

	logger.Info().
		Int64("refresh_ms", cfg.GetRefresh()).
		Int("concurrency", cfg.GetConcurrency()).
		Bool("state", cfg.State.Enabled).
		Bool("redis", cfg.Redis.Addr != "").
		Str("listen", cfg.GetListen()).
		Msg("whistlectl started")

	err = g.Wait()
	bus.WaitAsync()

	return err
}

// loadBindings reconciles the registry with the definitions file. It blocks
// until credentials are configured.
func (d *daemon) loadBindings(ctx context.Context, path string) {
	if path == "" {
		logger.Warn().Msg("No bindings file configured")
		return
	}

	defs, err := binding.LoadDefinitions(path)
	if err != nil {
		logger.Error().Err(err).Str("file", path).Msg("failed to read bindings")
		return
	}

	failed := d.resolver.Apply(ctx, defs)
	logger.Info().
		Str("file", path).
		Int("defined", len(defs)).
		Int("failed", failed).
		Msg("Bindings loaded")
}

func (d *daemon) reload(ctx context.Context, next *config.Config) {
	logger.Info().Msg("Config changed, reloading")

	if level, err := logger.ParseLevel(next.GetLogLevel()); err == nil {
		logger.SetLogLevel(level)
	}

	setCredentials(d.authCtx, next)

	interval := time.Duration(next.GetRefresh()) * time.Millisecond
	if err := d.engine.SetInterval(interval); err != nil {
		logger.Error().Err(err).Msg("failed to apply refresh interval")
	}

	go d.loadBindings(ctx, next.GetBindingsFile())
}

func setCredentials(authCtx *auth.Context, cfg config.Provider) {
	username, password := cfg.GetCredentials()
	if err := authCtx.SetCredentials(username, password); err != nil {
		logger.Debug().Err(err).Msg("Credential change ignored")
	}
	if !authCtx.Credentials().Complete() {
		logger.Warn().Msg("Whistle credentials incomplete, waiting for configuration")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	if err := pid.Remove(); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}
