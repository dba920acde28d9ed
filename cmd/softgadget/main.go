// Command softgadget publishes a composite HID + mass-storage gadget,
// optionally with a CDC-ACM serial port, to a spool directory.
//
// Usage:
//
//	softgadget [options]
//
// Configuration is read from softgadget.yaml in /etc/softgadget,
// $HOME/.softgadget or the working directory (or the file given with
// -c), then from SOFTGADGET_* environment variables, then from flags.
//
// Options:
//
//	-c, --config FILE       Configuration file
//	-l, --lun ARG           Logical unit, e.g. file=disk.img,ro (repeatable)
//	    --hid LIST          HID presets (default: keyboard)
//	-m, --manifest FILE     HID manifest with additional functions
//	    --acm               Include the CDC-ACM function
//	-s, --spool DIR         Directory the gadget is published to
//	    --snapshot FILE     Write a CBOR snapshot of the bound gadget
//	-v, --log-level LEVEL   Log level (debug, info, warn, error)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ardnew/softgadget/device"
	"github.com/ardnew/softgadget/gadget"
	"github.com/ardnew/softgadget/internal/config"
	"github.com/ardnew/softgadget/pkg"
)

const component = pkg.ComponentDevice

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		pkg.LogError(component, "softgadget failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := config.NewFlagSet("softgadget")
	snapshotFile := fs.String("snapshot", "", "Write a CBOR snapshot of the bound gadget to this file.")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFlags(fs)
	if err != nil {
		return err
	}

	logFile := os.Stderr
	if cfg.Log.File != "" && cfg.Log.File != "-" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logFile = f
	}
	pkg.ConfigureLogging(logFile, cfg.LogFormat(), cfg.LogLevel())

	descs, err := cfg.HIDDescriptors()
	if err != nil {
		return err
	}
	registry := gadget.NewRegistry()
	if err := gadget.RegisterAll(registry, descs); err != nil {
		return err
	}
	defer func() {
		if err := registry.UnregisterAll(); err != nil {
			pkg.LogWarn(component, "failed to clear HID registry", "error", err)
		}
	}()

	ctrl, err := cfg.NewController()
	if err != nil {
		return err
	}

	params := cfg.Params()
	dev := device.NewDevice(params.DeviceDescriptor(), ctrl)
	if err := gadget.RegisterFunctions(dev); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	composite := gadget.New(registry, params)
	if err := dev.Probe(ctx, composite); err != nil {
		return fmt.Errorf("probe %s: %w", composite.Name(), err)
	}
	defer func() {
		if err := dev.Unregister(); err != nil {
			pkg.LogError(component, "failed to unregister gadget", "error", err)
		}
	}()

	pkg.LogInfo(component, "gadget published",
		"config", cfg.ConfigFile,
		"directory", ctrl.GadgetDir(),
		"hid", registry.Count(),
		"acm", params.EnableACM,
		"luns", len(params.LUNs))

	if *snapshotFile != "" {
		if err := writeSnapshot(*snapshotFile, dev, composite); err != nil {
			return err
		}
	}

	<-ctx.Done()
	pkg.LogInfo(component, "shutting down...")
	return nil
}

func writeSnapshot(path string, dev *device.Device, composite *gadget.Composite) error {
	snap, err := gadget.TakeSnapshot(dev, composite)
	if err != nil {
		return err
	}
	data, err := gadget.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	pkg.LogDebug(component, "snapshot written", "path", path, "size", len(data))
	return nil
}
