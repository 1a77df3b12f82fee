// quietmesh — a peer-to-peer, post-quantum-safe LAN chat node.
//
// Usage:
//
//	quietmesh --config /etc/quietmesh/node.yaml
//	quietmesh --join public_lobby,public_dev --log-level debug
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/floatingcomet62/quietmesh/internal/config"
	"github.com/floatingcomet62/quietmesh/internal/metrics"
	"github.com/floatingcomet62/quietmesh/internal/orchestrator"
	"github.com/floatingcomet62/quietmesh/internal/protocol"
	"github.com/floatingcomet62/quietmesh/internal/transport"
)

var Version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to config file")
	joinRooms := flag.String("join", "", "comma-separated public room names to join at startup")
	logLevel := flag.String("log-level", "", "log level (debug/info/warn/error)")
	metricsAddr := flag.String("metrics-addr", "", "metrics/health listen address (overrides the config file when non-empty)")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("quietmesh %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	if *joinRooms != "" {
		cfg.AutoJoinRooms = append(cfg.AutoJoinRooms, strings.Split(*joinRooms, ",")...)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	cfg.ApplyEnvOverrides()

	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG ERROR: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("quietmesh starting", "version", Version, "node_id", cfg.NodeID, "arch", runtime.GOARCH)

	tr, err := transport.NewMulticast(cfg.NodeID, cfg.MulticastGroup, cfg.MulticastPort, logger)
	if err != nil {
		logger.Error("failed to initialize transport", "error", err)
		os.Exit(1)
	}

	node, err := orchestrator.New(cfg, tr, logger)
	if err != nil {
		logger.Error("failed to initialize node", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := node.Run(ctx); err != nil {
			logger.Error("node run exited with error", "error", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger.Warn("metrics server exited", "error", err)
			}
		}()
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	go logSurfacedEvents(logger, node)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	cmdDone := make(chan struct{})
	go runREPL(logger, node, cmdDone)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig)
	case <-cmdDone:
		logger.Info("stdin closed, shutting down")
	}

	cancel()
	node.Stop()
	logger.Info("quietmesh stopped")
}

func logSurfacedEvents(logger *slog.Logger, node *orchestrator.Node) {
	for ev := range node.Events() {
		switch ev.Kind {
		case protocol.EventPing:
			logger.Info("ping", "from", ev.Peer, "room", ev.Room.String())
		case protocol.EventPublicKeyReceived:
			logger.Info("public key received", "from", ev.Peer)
		case protocol.EventHandshakeEstablished:
			logger.Info("session established", "peer", ev.Peer)
		case protocol.EventPlaintextReceived:
			fmt.Printf("[%s] %s\n", ev.Peer, ev.Text)
		case protocol.EventOtherReceived:
			logger.Debug("unprocessed traffic", "from", ev.Peer, "room", ev.Room.String(), "text", ev.Text)
		}
	}
}

// runREPL implements spec.md §6's stdin command set:
//
//	ping <room>
//	join_room|jr <room>
//	request_public_key|rpk <peer-id>
//	shared_secret_exchange|sse <peer-id>
//	shared_secret_communication|ssc <peer-id> <message...>
func runREPL(logger *slog.Logger, node *orchestrator.Node, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		cmd := fields[0]

		var err error
		switch cmd {
		case "ping":
			err = requireArg(fields, 1, func(room string) error { return node.Ping(room) })
		case "join_room", "jr":
			err = requireArg(fields, 1, func(room string) error { return node.JoinRoom(room) })
		case "request_public_key", "rpk":
			err = requireArg(fields, 1, func(peer string) error { return node.RequestPublicKey(peer) })
		case "shared_secret_exchange", "sse":
			err = requireArg(fields, 1, func(peer string) error { return node.InitiateSharedSecretExchange(peer) })
		case "shared_secret_communication", "ssc":
			if len(fields) < 3 {
				err = fmt.Errorf("usage: shared_secret_communication <peer-id> <message>")
			} else {
				err = node.SendSharedSecretCommunication(fields[1], fields[2])
			}
		default:
			err = fmt.Errorf("unknown command %q", cmd)
		}

		if err != nil {
			logger.Warn("command failed", "cmd", cmd, "error", err)
		}
	}
}

func requireArg(fields []string, n int, f func(string) error) error {
	if len(fields) <= n {
		return fmt.Errorf("missing argument %d", n)
	}
	return f(fields[n])
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
