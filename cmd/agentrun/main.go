// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command agentrun drives the ReAct engine from either an interactive
// terminal session or a long-running HTTP server.
//
// Usage:
//
//	agentrun chat --config agentrun.yaml
//	agentrun serve --config agentrun.yaml --addr :8080
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/QUSEIT/simacode-sub000/pkg/config"
	"github.com/QUSEIT/simacode-sub000/pkg/logger"
	"github.com/QUSEIT/simacode-sub000/pkg/service"
	"github.com/QUSEIT/simacode-sub000/pkg/service/cliadapter"
	"github.com/QUSEIT/simacode-sub000/pkg/service/httpadapter"
)

// CLI defines the command-line interface.
type CLI struct {
	Chat ChatCmd `cmd:"" help:"Run one interactive turn against stdin/stdout."`
	Serve ServeCmd `cmd:"" help:"Start the HTTP server."`

	Config    string `short:"c" help:"Path to project config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// ChatCmd reads one input from stdin and drives it to completion,
// rendering every engine update to stdout.
type ChatCmd struct {
	Input string `arg:"" optional:"" help:"Initial input. If omitted, read from stdin."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	cfg, err := config.Load(config.Options{ProjectFile: cli.Config})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	rt, err := service.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting runtime: %w", err)
	}
	defer rt.Close()

	stdin := bufio.NewReader(os.Stdin)

	input := c.Input
	if input == "" {
		fmt.Fprint(os.Stdout, "> ")
		line, _ := stdin.ReadString('\n')
		input = strings.TrimSpace(line)
	}

	sessionID := uuid.NewString()
	e := rt.NewEngine(sessionID, input)

	adapter := cliadapter.New(rt, stdin, os.Stdout)
	_, err = adapter.Run(ctx, e)
	return err
}

// ServeCmd starts the HTTP server exposing the chunked streaming
// protocol and the WebSocket equivalent.
type ServeCmd struct {
	Addr string `help:"Listen address." default:":8080"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(config.Options{ProjectFile: cli.Config})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	rt, err := service.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting runtime: %w", err)
	}
	defer rt.Close()

	adapter := httpadapter.New(rt)
	slog.Info("agentrun: listening", "addr", c.Addr)
	return httpadapter.Serve(ctx, c.Addr, adapter)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("agentrun"),
		kong.Description("ReAct tool-orchestration runtime"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}

	out := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		out = file
	}
	logger.Init(level, out, cli.LogFormat)

	err = kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
