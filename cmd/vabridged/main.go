// Command vabridged runs the virtual audio bridge engine standalone,
// listening for zone clients on its output and input TCP ports until
// interrupted. It exists for manual testing and local development; a
// real HAL build links the engine package directly rather than
// shelling out to this binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/zoneaudio/vabridge/internal/config"
	"github.com/zoneaudio/vabridge/internal/engine"
)

func main() {
	defaults := config.Default()

	concurrentUsers := pflag.IntP("ro.concurrent.user.num", "u", defaults.ConcurrentUserNum,
		"Number of zone clients sharing the engine; >1 enables the USERID handshake.")
	outPort := pflag.IntP("virtual.audio.out.tcp.port", "o", defaults.OutTCPPort,
		"TCP port the output acceptor listens on.")
	inPort := pflag.IntP("virtual.audio.in.tcp.port", "i", defaults.InTCPPort,
		"TCP port the input acceptor listens on.")
	inputBufferMs := pflag.IntP("virtual.audio.in.buffer_milliseconds", "b", defaults.InputBufferMilliseconds,
		"Input buffer size in milliseconds, clamped to [10, 1000].")
	channelMaskMode := pflag.Bool("acg.audio.channel.mask.enable", defaults.ChannelMaskMode,
		"Send the raw channel mask in OPEN frames instead of the channel count.")
	verbose := pflag.BoolP("verbose", "v", false, "Enable debug logging.")
	help := pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - standalone virtual audio bridge engine\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	logger := log.New(os.Stderr)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg := config.Options{
		ConcurrentUserNum:       *concurrentUsers,
		OutTCPPort:              *outPort,
		InTCPPort:               *inPort,
		InputBufferMilliseconds: *inputBufferMs,
		ChannelMaskMode:         *channelMaskMode,
	}.Normalize()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := engine.NewDevice(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start bridge", "error", err)
		os.Exit(1)
	}
	defer dev.Close()

	logger.Info("bridge listening",
		"out_port", dev.Engine.OutputPort(),
		"in_port", dev.Engine.InputPort(),
		"concurrent_users", cfg.ConcurrentUserNum,
	)

	<-ctx.Done()
	logger.Info("shutting down")
}
