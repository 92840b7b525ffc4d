package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ironsheep/imgresize/internal/cache"
	"github.com/ironsheep/imgresize/internal/config"
	"github.com/ironsheep/imgresize/internal/logging"
	"github.com/ironsheep/imgresize/internal/server"
	"github.com/ironsheep/imgresize/internal/source"
	"github.com/ironsheep/imgresize/internal/transform"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("imgresize %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "imgresize: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("imgresize - realtime image resizing server")
	fmt.Println()
	fmt.Println("Usage: imgresize [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Print(config.Flags().FlagUsages())
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  Every setting can be given as IMGRESIZE_<KEY>, e.g.")
	fmt.Println("  IMGRESIZE_RESIZE_CACHE_SIZE=500 or IMGRESIZE_LOG_LEVEL=debug")
	fmt.Println()
	fmt.Println("Request an image as GET /<path>?w=&h=&dpr=&output=&algorithm=&filter=&bg=")
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting imgresize",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit),
		zap.String("root", cfg.Root),
		zap.Int("cache_size", cfg.Resize.CacheSize),
	)

	defs, err := cfg.ParamDefaults()
	if err != nil {
		return err
	}

	loader, err := source.NewFS(cfg.Root, cfg.MaxSourceBytes)
	if err != nil {
		return err
	}
	defer loader.Close()

	results, err := cache.New(cfg.Resize.CacheSize, log.Named("cache"))
	if err != nil {
		return err
	}

	engine, err := transform.NewEngine(results, loader, transform.Options{
		Defaults:    defs,
		JPEGQuality: cfg.Resize.JPEGQuality,
		Workers:     cfg.Resize.Workers,

		MaxSourcePixels: cfg.Resize.MaxSourcePixels,
	}, log.Named("engine"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(engine, log.Named("http"), Version)
	if err := srv.Run(ctx, cfg.Listen, cfg.ShutdownTimeout); err != nil {
		log.Error("server error", zap.Error(err))
		return err
	}
	log.Info("stopped")
	return nil
}
