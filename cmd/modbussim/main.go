// Command modbussim runs a standalone Modbus TCP/RTU device simulator
// driven entirely by a TOML configuration file: one unit, four register
// tables, each point evolving on its own schedule under a configurable
// dynamics rule.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"modbussim/internal/config"
	"modbussim/internal/logging"
	"modbussim/internal/modbus"
	"modbussim/internal/scheduler"
	"modbussim/internal/transport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("modbussim", flag.ContinueOnError)
	configPath := fs.String("config", "config.toml", "path to the TOML configuration file")
	version := fs.Bool("version", false, "print build information and exit")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *version {
		printVersion()
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "modbussim:", err)
		return 1
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "modbussim:", err)
		return 1
	}

	device, err := config.Build(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "modbussim:", err)
		return 1
	}

	disp := modbus.NewDispatcher(device.Store, device.UnitID)
	sched := scheduler.New(device.Store, device.Jobs, cfg.Logging.LogValueUpdates, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	if cfg.TCP != nil {
		tcp := transport.NewTCP(cfg.TCP.Bind, disp, logger)
		ln, bindErr := net.Listen("tcp", cfg.TCP.Bind)
		if bindErr != nil {
			fmt.Fprintln(os.Stderr, "modbussim:", bindErr)
			return 2
		}
		ln.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tcp.Run(ctx); err != nil {
				logger.WithField("error", err).Error("tcp transport exited")
			}
		}()
	}

	if cfg.RTU != nil {
		rtu := transport.NewRTU(transport.RTUConfig{
			Device:   cfg.RTU.Device,
			BaudRate: cfg.RTU.BaudRate,
			DataBits: cfg.RTU.DataBits,
			StopBits: cfg.RTU.StopBits,
			Parity:   cfg.RTU.Parity,
		}, disp, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rtu.Run(ctx); err != nil {
				logger.WithField("error", err).Error("rtu transport exited")
			}
		}()
	}

	logger.Info("modbussim started")

	<-ctx.Done()
	logger.Info("shutting down")

	secondSignal := make(chan os.Signal, 1)
	signal.Notify(secondSignal, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(secondSignal)

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return 0
	case <-secondSignal:
		logger.Warn("second interrupt received, exiting without waiting for drain")
		return 130
	}
}

func printVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Println("modbussim (build info unavailable)")
		return
	}
	fmt.Printf("modbussim %s\n", info.Main.Version)
}
