// Command duplexclient connects to a WebSocket server, sends each line read
// from stdin as a text frame and prints every text frame it receives.
//
// The line "close" (or end of input) closes the connection gracefully.
// Settings come from a YAML file, DUPLEX_* environment variables (a .env
// file in the working directory is loaded first) and flags, in increasing
// order of precedence.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/cyberinferno/go-duplexsocket/config"
	"github.com/cyberinferno/go-duplexsocket/duplexsession"
	"github.com/cyberinferno/go-duplexsocket/logger"
)

func main() {
	cmd := &cli.Command{
		Name:  "duplexclient",
		Usage: "send stdin lines over a WebSocket and print what comes back",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "duplexclient.yaml", Usage: "path to the YAML configuration file"},
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "server host[:port]"},
			&cli.BoolFlag{Name: "secure", Aliases: []string{"s"}, Usage: "use wss:// instead of ws://"},
			&cli.StringFlag{Name: "transport", Aliases: []string{"t"}, Usage: "websocket backend: gorilla or coder"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "duplexclient:", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command) (*config.ClientConfig, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if cmd.IsSet("address") {
		cfg.Address = cmd.String("address")
	}
	if cmd.IsSet("secure") {
		cfg.Secure = cmd.Bool("secure")
	}
	if cmd.IsSet("transport") {
		cfg.Transport = cmd.String("transport")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := duplexsession.NewDuplexSocketSession(cfg.DuplexSessionConfig(), log)
	session.OnMessage(func(event duplexsession.MessageEvent) {
		fmt.Fprintln(os.Stdout, event.Message)
	})

	closed := make(chan struct{})
	var closeOnce sync.Once
	session.OnStateChange(func(event duplexsession.StateChangeEvent) {
		if event.State == duplexsession.Closed {
			closeOnce.Do(func() { close(closed) })
		}
	})

	err = session.Connect(ctx, cfg.Address, cfg.Secure, nil, func(err error) {
		log.Error("unable to connect", logger.Field{Key: "address", Value: cfg.Address}, logger.Field{Key: "error", Value: err})
	})
	if err != nil {
		return err
	}

	go func() {
		if err := forwardLines(os.Stdin, session.Enqueue); err != nil {
			log.Warn("reading stdin failed", logger.Field{Key: "error", Value: err})
		}
		session.EnqueueClose()
	}()

	select {
	case <-ctx.Done():
		log.Info("interrupted")
	case <-closed:
	}

	dctx, cancel := context.WithTimeout(context.Background(), cfg.Session.CloseTimeout+time.Second)
	defer cancel()

	err = session.Disconnect(dctx)
	// Lines still queued at exit are lost; report how many.
	session.DiscardPending()

	return err
}
