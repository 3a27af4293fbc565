package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"modelfetch/pkg/cli"
	"modelfetch/pkg/config"
	"modelfetch/pkg/display"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	res, err := Engine(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(res.ExitCode)
}

func Engine(ctx context.Context, args []string) (*cli.ExecutionResult, error) {
	// 1. Parse cli.def
	engine, err := cli.NewEngine(cli.DefaultDSL)
	if err != nil {
		return nil, fmt.Errorf("INTERNAL ERROR: parsing CLI definition: %w", err)
	}

	// 2. Parse command line arguments
	pr := engine.Parse(args)
	if pr.Error != nil {
		return nil, pr.Error
	}
	if pr.Help {
		engine.PrintHelp(pr.HelpArgs...)
		return &cli.ExecutionResult{ExitCode: 0}, nil
	}
	inv := pr.Invocation

	// 3. Logging and console
	level := slog.LevelWarn
	if inv.Bool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	disp := display.NewConsole()
	disp.SetVerbose(inv.Bool("verbose"))

	// 4. Configuration
	sysCfg, err := config.Init()
	if err != nil {
		return nil, fmt.Errorf("error initializing config: %w", err)
	}
	if dir := inv.String("config"); dir != "" {
		sysCfg.Checkout().SetConfigDir(dir)
	}
	sysCfg.Freeze()

	// 5. Execute
	app := cli.NewApp(sysCfg, disp)
	app.Bind(engine)
	return engine.Execute(ctx, inv)
}
