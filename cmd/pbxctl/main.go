/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// pbxctl is a command-line client for the PBX gateway.
//
// Configuration comes from a YAML file (-config) or from PBX_* environment
// variables, optionally loaded from a .env file (-env). Credentials are read
// from PBX_USERNAME and PBX_PASSWORD.
//
//	pbxctl [flags] <command> [args]
//
// Commands: probe, extensions, queues, ivrs, routes, route <id>,
// cdr, ext-status [id...], queue-status [id], calls, hangup <channel>,
// transfer <channel> <number>, park <channel> [lot],
// monitor <ext> <channel> <listen|whisper|barge>, events.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	pbx "github.com/tejzpr/pbx-gateway-go"
	"github.com/tejzpr/pbx-gateway-go/callcontrol"
	"github.com/tejzpr/pbx-gateway-go/events"
	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

// errUsage marks command-line mistakes, which exit with status 2.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one pbxctl invocation and returns the process exit status.
// Every deferred cleanup, including the token revocation, has run by the time
// it returns.
func run(argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pbxctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath  = fs.String("config", "", "YAML configuration file")
		envFile     = fs.String("env", "", ".env file to load before reading PBX_* variables")
		debug       = fs.Bool("debug", false, "enable debug logging")
		noCache     = fs.Bool("no-cache", false, "bypass the result cache")
		page        = fs.Int("page", 1, "call record page")
		pageSize    = fs.Int("page-size", 50, "call record page size")
		metricsAddr = fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: pbxctl [flags] <command> [args]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR creating logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return 1
	}
	cfg.Logger = logger

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		cfg.Registerer = reg
		go serveMetrics(logger, *metricsAddr, reg)
	}

	client, err := pbx.NewClient(cfg)
	if err != nil {
		logger.Error("failed to create client", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := command{
		client:   client,
		logger:   logger,
		out:      stdout,
		useCache: !*noCache,
		page:     *page,
		pageSize: *pageSize,
	}
	err = cmd.execute(ctx, fs.Arg(0), fs.Args()[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return 2
	default:
		fmt.Fprintf(stderr, "ERROR [%s]: %v\n", pbxsdk.KindOf(err), err)
		return 1
	}
}

// command holds what every subcommand needs.
type command struct {
	client   *pbx.GatewayClient
	logger   *zap.Logger
	out      io.Writer
	useCache bool
	page     int
	pageSize int
}

func (c *command) execute(ctx context.Context, name string, args []string) error {
	if name == "probe" {
		if err := c.client.ProbeConnectivity(ctx, ""); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "relay ok")
		return nil
	}

	if err := c.client.Login(ctx, os.Getenv("PBX_USERNAME"), os.Getenv("PBX_PASSWORD")); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer func() {
		if err := c.client.Logout(context.Background()); err != nil {
			c.logger.Warn("logout failed", zap.Error(err))
		}
	}()

	client := c.client
	switch name {
	case "extensions":
		return c.print(client.ListExtensions(ctx, c.useCache))
	case "queues":
		return c.print(client.ListQueues(ctx, c.useCache))
	case "ivrs":
		return c.print(client.ListIVRs(ctx, c.useCache))
	case "routes":
		return c.print(client.ListInboundRoutes(ctx))
	case "route":
		if err := requireArgs(args, 1); err != nil {
			return err
		}
		return c.print(client.GetInboundRoute(ctx, args[0]))
	case "cdr":
		return c.print(client.ListCallRecords(ctx, c.page, c.pageSize, nil))
	case "ext-status":
		return c.print(client.ExtensionStatuses(ctx, args...))
	case "queue-status":
		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		return c.print(client.QueueStatuses(ctx, id))
	case "calls":
		return c.print(client.ActiveCalls(ctx))
	case "hangup":
		if err := requireArgs(args, 1); err != nil {
			return err
		}
		return client.Hangup(ctx, args[0])
	case "transfer":
		if err := requireArgs(args, 2); err != nil {
			return err
		}
		return client.Transfer(ctx, args[0], args[1], "")
	case "park":
		if err := requireArgs(args, 1); err != nil {
			return err
		}
		lot := ""
		if len(args) > 1 {
			lot = args[1]
		}
		return client.Park(ctx, args[0], lot)
	case "monitor":
		if err := requireArgs(args, 3); err != nil {
			return err
		}
		return client.Monitor(ctx, args[0], args[1], callcontrol.MonitorMode(args[2]))
	case "events":
		return c.listen(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}

func loadConfig(path, envFile string) (*pbxsdk.Config, error) {
	if path != "" {
		return pbxsdk.LoadConfig(path)
	}
	if envFile != "" {
		return pbxsdk.ConfigFromEnv(envFile)
	}
	return pbxsdk.ConfigFromEnv()
}

func serveMetrics(logger *zap.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

func (c *command) listen(ctx context.Context) error {
	listener := c.client.Events()
	listener.On(events.AnyTopic, func(e *events.Event) {
		fmt.Fprintf(c.out, "[%d] %s\n", e.Topic, string(e.Raw))
	})
	if err := listener.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect event stream: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil
	case <-listener.Done():
		return listener.Err()
	}
}

// print writes v as indented JSON, or passes err on.
func (c *command) print(v any, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireArgs(args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%w: expected %d argument(s), got %d", errUsage, n, len(args))
	}
	return nil
}
