package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/video-system/go-camera-hal/internal/ffmpeg"
	"github.com/video-system/go-camera-hal/pkg/api"
	"github.com/video-system/go-camera-hal/pkg/camera"
	"github.com/video-system/go-camera-hal/pkg/display"
	"github.com/video-system/go-camera-hal/pkg/driver"
	"github.com/video-system/go-camera-hal/pkg/platform"

	_ "github.com/video-system/go-camera-hal/pkg/driver/sim"
	_ "github.com/video-system/go-camera-hal/pkg/driver/v4l2"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := camera.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	profile, err := cfg.Profile()
	if err != nil {
		log.Fatalf("Failed to resolve board: %v", err)
	}

	drvOpts := cfg.DriverOptions()
	drvOpts.ZoomSteps = profile.MaxZoom
	drv, err := driver.New(cfg.Camera.Driver, drvOpts)
	if err != nil {
		log.Fatalf("Failed to create driver %q (available: %v): %v", cfg.Camera.Driver, driver.Names(), err)
	}

	opts := cfg.Options()
	session, err := camera.Open(opts, drv, profile)
	if err != nil {
		log.Fatalf("Failed to open camera: %v", err)
	}
	log.Printf("camerad %s: session %s on %s (%s driver)", version, session.ID(), profile.Target, drv.Name())

	if cfg.Display.Enabled {
		win := display.NewCompositor(display.CompositorConfig{
			MinUndequeued: cfg.Display.MinUndequeued,
			Allocator:     opts.Allocator,
		})
		if err := session.SetPreviewWindow(win); err != nil {
			log.Fatalf("Failed to bind preview window: %v", err)
		}
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received...")
		cancel()
	}()

	var platformClient *platform.Client
	if cfg.Platform.Enabled && cfg.Platform.URL != "" {
		platformClient = platform.New(platform.Config{
			URL:    cfg.Platform.URL,
			APIKey: cfg.Platform.APIKey,
		})
		if err := platformClient.CheckHealth(ctx); err != nil {
			log.Printf("Warning: platform not reachable: %v", err)
		}
	}

	ff, err := ffmpeg.New()
	if err != nil {
		log.Printf("Warning: recording disabled: %v", err)
	} else if v, err := ff.Version(ctx); err != nil {
		log.Printf("Warning: ffmpeg version: %v", err)
	} else {
		log.Printf("Recording with %s", v)
	}

	ctrl, err := newController(ctx, controllerConfig{
		Config:   cfg,
		Session:  session,
		FFmpeg:   ff,
		Platform: platformClient,
	})
	if err != nil {
		log.Fatalf("Failed to start controller: %v", err)
	}

	if err := ctrl.StartPreview(); err != nil {
		log.Printf("Warning: preview not started: %v", err)
	}

	// Create and start API server
	apiServer := api.NewServer(api.ServerConfig{
		Host:   cfg.API.Host,
		Port:   cfg.API.Port,
		Camera: ctrl,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	<-ctx.Done()

	// Cleanup
	apiServer.Stop()
	ctrl.Close()
	session.Release()

	log.Println("Camera stopped")
}
