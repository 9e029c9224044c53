// Command swapline opens a window and renders the demo scene until the window
// is closed or the process is interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"swapline/src/app"
	"swapline/src/config"
	"swapline/src/render"
)

func init() {
	// GLFW and the window system must stay on the main thread.
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		if render.IsContractViolation(err) {
			fmt.Fprintf(os.Stderr, "swapline: internal error: %+v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "swapline: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	defer render.CheckError(&err)

	var (
		configPath = flag.String("config", "", "TOML settings file; defaults apply when empty")
		validation = flag.Bool("validation", false, "enable the Vulkan validation layer")
		writeConf  = flag.String("write-config", "", "write the effective settings to this file and exit")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *validation {
		cfg.Render.Validation = true
	}
	if *writeConf != "" {
		return cfg.Save(*writeConf)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.New(cfg, logger).Run(ctx)
}
