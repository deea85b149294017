package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"viewsync/internal/adapters/mqttpub"
	"viewsync/internal/modules/embeddedmqtt"
	"viewsync/internal/modules/events"
	"viewsync/internal/modules/sessionhub"
	"viewsync/internal/ports"
	"viewsync/internal/record"
	"viewsync/internal/vsd"
)

func main() {
	var (
		configPath string
		listen     string
		dbPath     string
		logLevel   string
		logFormat  string
		logOutput  string
		logUTC     bool
		debug      bool
		dryRun     bool
	)

	defaultConfig, err := vsd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&listen, "listen", "", "listen address override")
	flag.StringVar(&dbPath, "db", "", "database path override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (json|console)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.BoolVar(&logUTC, "log-utc", false, "use UTC timestamps in logs")
	flag.BoolVar(&debug, "debug", false, "send a diagnostic message to each new session")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, listen, dbPath, logLevel, logFormat, logOutput, debug)

	if dryRun {
		return
	}

	logger := vsd.NewLogger(vsd.LogConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
		Output: cfg.Server.LogOutput,
		UTC:    logUTC,
	})
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath, err = vsd.DefaultDBPath()
		if err != nil {
			logger.Error("resolve database path", zap.Error(err))
			os.Exit(1)
		}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Server.DBPath), 0o755); err != nil {
		logger.Error("create database directory", zap.Error(err))
		os.Exit(1)
	}

	db, err := record.Open(cfg.Server.DBPath)
	if err != nil {
		logger.Error("open database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	store := record.NewStore(logger.Named("record"), db)

	auth, err := buildAuthenticator(cfg)
	if err != nil {
		logger.Error("configure auth", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("viewsyncd starting",
		zap.String("listen", cfg.Server.Listen),
		zap.String("db_path", cfg.Server.DBPath),
		zap.Bool("debug", cfg.Server.Debug),
		zap.Bool("events", cfg.Modules.Events.Enabled),
		zap.Bool("embedded_mqtt", cfg.Modules.EmbeddedMQTT.Enabled))

	modules := []vsd.ModuleRunner{}

	// The embedded broker comes up before anything tries to connect to it.
	if cfg.Modules.EmbeddedMQTT.Enabled {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
	}

	var sink ports.EventSink
	if cfg.Modules.Events.Enabled {
		broker := cfg.Modules.Events.Broker
		if broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
			broker = embeddedBrokerURL(cfg)
		}
		clientID := cfg.Modules.Events.ClientID
		if clientID == "" {
			clientID = fmt.Sprintf("viewsyncd-%d", time.Now().UnixNano())
		}
		pub, err := mqttpub.NewClient(mqttpub.Options{
			BrokerURL: broker,
			ClientID:  clientID,
			Username:  cfg.Modules.Events.Username,
			Password:  cfg.Modules.Events.Password,
			TLSCA:     cfg.Modules.Events.TLSCA,
			TLSCert:   cfg.Modules.Events.TLSCert,
			TLSKey:    cfg.Modules.Events.TLSKey,
		})
		if err != nil {
			logger.Error("mqtt connection failed", zap.Error(err))
			os.Exit(1)
		}
		defer pub.Close()

		bridge := events.NewModule(logger.Named("events"), pub, events.Config{
			TopicBase: cfg.Modules.Events.TopicBase,
		})
		sink = bridge
		modules = append(modules, vsd.ModuleRunner{Name: "events", Run: bridge.Run})
	}

	hub := sessionhub.NewModule(logger.Named("sessionhub"), sessionhub.Config{
		Listen:        cfg.Server.Listen,
		Debug:         cfg.Server.Debug,
		FlushInterval: time.Duration(cfg.Server.FlushIntervalMS) * time.Millisecond,
	}, store, db, auth, sink)
	modules = append(modules, vsd.ModuleRunner{Name: "sessionhub", Run: hub.Run})

	supervisor := vsd.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (vsd.Config, error) {
	cfg, err := vsd.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	// A missing default config is fine; flags and defaults cover it.
	if errors.Is(err, os.ErrNotExist) {
		return vsd.Config{Auth: vsd.AuthConfig{AllowAnonymous: true}}, nil
	}
	return vsd.Config{}, err
}

func applyOverrides(cfg *vsd.Config, listen, dbPath, logLevel, logFormat, logOutput string, debug bool) {
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if dbPath != "" {
		cfg.Server.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if logOutput != "" {
		cfg.Server.LogOutput = logOutput
	}
	if debug {
		cfg.Server.Debug = true
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1:8900"
	}
}

func buildAuthenticator(cfg vsd.Config) (sessionhub.Authenticator, error) {
	if len(cfg.Auth.Tokens) > 0 {
		return sessionhub.NewStaticTokenAuth(cfg.Auth.Tokens), nil
	}
	if cfg.Auth.AllowAnonymous {
		return sessionhub.AnonymousAuth{}, nil
	}
	return nil, errors.New("auth requires tokens or allow_anonymous")
}

func embeddedBrokerURL(cfg vsd.Config) string {
	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	tlsEnabled := cfg.Modules.EmbeddedMQTT.TLSCert != "" || cfg.Modules.EmbeddedMQTT.TLSKey != ""
	return embeddedmqtt.BrokerURL(listen, tlsEnabled)
}

func startEmbeddedBroker(ctx context.Context, cfg vsd.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := embeddedmqtt.NewModule(logger.Named("embedded_mqtt"), embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	})
	if err != nil {
		return err
	}

	go func() {
		if err := mod.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()

	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = "127.0.0.1:1883"
	}
	return waitForListen(listen, 3*time.Second)
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
