package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pennylane/internal/app"
	"pennylane/internal/config"
)

func main() {
	var (
		cfgPath string
		envPath string
		check   bool
	)
	flag.StringVar(&cfgPath, "config", "./pennylane.yaml", "path to config (json or yaml); missing file uses defaults")
	flag.StringVar(&envPath, "env", ".env", "dotenv file with PENNY_* variables")
	flag.BoolVar(&check, "check", false, "print a startup self-check before running")
	flag.Parse()

	if err := config.LoadDotEnv(envPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if check {
		lines, err := app.SelfCheck(cfg)
		for _, l := range lines {
			fmt.Println(l)
		}
		if err != nil {
			fmt.Println("fatal:", err)
			os.Exit(1)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.New(cfgm)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(context.Background()); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		} else {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)

	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
