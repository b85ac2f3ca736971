package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/podsock/internal/logger"
	"github.com/marmos91/podsock/pkg/client"
	"github.com/marmos91/podsock/pkg/config"
	"github.com/marmos91/podsock/pkg/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `podsock - a pod server speaking bencode over a unix socket

Usage:
  podsock <command> [flags]

Commands:
  serve      Start the pod server
  init       Write a default configuration file
  describe   Print the namespaces served by a running pod
  invoke     Call a var on a running pod
  version    Print the version

Run 'podsock <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "serve":
		err = runServe(args)
	case "init":
		err = runInit(args)
	case "describe":
		err = runDescribe(args)
	case "invoke":
		err = runInvoke(args)
	case "version":
		fmt.Println(version)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/podsock/config.yaml)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	logger.Info("podsock %s starting", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsResult := config.InitializeMetrics(cfg)

	reg, closers, err := config.BuildRegistry(ctx, cfg, version, metricsResult)
	if err != nil {
		return err
	}

	srv := server.New(reg)
	srv.StopTimeout = cfg.Server.ShutdownTimeout
	for _, c := range closers {
		srv.AddCloser(c)
	}

	adapters, err := config.CreateAdapters(cfg, metricsResult.PodMetrics)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	err = srv.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("Server stopped gracefully")
		return nil
	}
	return err
}

func setupLogging(cfg *config.Config) (func() error, error) {
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)

	out, closeFn, err := logger.OpenOutput(cfg.Logging.Output)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)
	return closeFn, nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "", "Write to this path instead of the default location")
	force := fs.Bool("force", false, "Overwrite an existing file")
	_ = fs.Parse(args)

	if *path != "" {
		if err := config.InitConfigToPath(*path, *force); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", *path)
		return nil
	}

	written, err := config.InitConfig(*force)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", written)
	return nil
}

// clientFlags registers the flags shared by describe and invoke.
func clientFlags(fs *flag.FlagSet) (socket *string, timeout *time.Duration) {
	socket = fs.String("socket", "", "Pod socket path (default: from config)")
	timeout = fs.Duration("timeout", 10*time.Second, "Call timeout")
	return socket, timeout
}

func resolveSocket(socket string) (string, error) {
	if socket != "" {
		return socket, nil
	}
	cfg, err := config.Load("")
	if err != nil {
		return "", err
	}
	return cfg.Adapters.Unix.SocketPath, nil
}

func runDescribe(args []string) error {
	fs := flag.NewFlagSet("describe", flag.ExitOnError)
	socket, timeout := clientFlags(fs)
	_ = fs.Parse(args)

	path, err := resolveSocket(*socket)
	if err != nil {
		return err
	}

	resp, err := client.New(path, client.WithTimeout(*timeout)).Describe(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("format: %s\n", resp.Format)
	for _, ns := range resp.Namespaces {
		fmt.Println(ns.Name)
		for _, v := range ns.Vars {
			fmt.Printf("  %s/%s\n", ns.Name, v.Name)
		}
	}
	return nil
}

func runInvoke(args []string) error {
	fs := flag.NewFlagSet("invoke", flag.ExitOnError)
	socket, timeout := clientFlags(fs)
	id := fs.String("id", "1", "Request id")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return errors.New("usage: podsock invoke [flags] <namespace/var> [json-args]")
	}
	target := fs.Arg(0)
	payload := "[]"
	if fs.NArg() > 1 {
		payload = fs.Arg(1)
	}

	path, err := resolveSocket(*socket)
	if err != nil {
		return err
	}

	value, err := client.New(path, client.WithTimeout(*timeout)).Invoke(context.Background(), *id, target, payload)
	if err != nil {
		return err
	}

	fmt.Println(string(value))
	return nil
}
