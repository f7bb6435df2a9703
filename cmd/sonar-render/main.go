// Command sonar-render converts sonar samples into Cartesian raster images.
//
// Samples are read as JSON lines from a file, stdin or a serial device.
// Each frame is rendered through a LUT that is rebuilt only when the sonar
// geometry changes, optionally written as PNG, published on an HTTP
// monitor and, with -db, the LUTs are cached across restarts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/tidewise/drivers-sonar-base/internal/config"
	"github.com/tidewise/drivers-sonar-base/internal/monitoring"
	"github.com/tidewise/drivers-sonar-base/internal/serialmux"
	"github.com/tidewise/drivers-sonar-base/internal/sonar"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/lutstore"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/monitor"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/render"
	"github.com/tidewise/drivers-sonar-base/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to a render config JSON file (defaults to "+config.DefaultRenderConfigPath+" when present)")
	input      = flag.String("input", "", "JSON-lines file of sonar samples, - for stdin")
	plotDir    = flag.String("plot", "", "Directory to write LUT coverage plots on each rebuild")
	versionFlg = flag.Bool("version", false, "Print version information and exit")
)

func init() {
	overrideFlags(flag.CommandLine)
}

// overrideFlags defines the flags that take precedence over the config
// file when set on the command line.
func overrideFlags(fs *flag.FlagSet) {
	fs.String("port", "", "Serial device streaming JSON-lines samples")
	fs.String("out", "", "Directory to write one PNG per frame")
	fs.String("db", "", "SQLite database used to cache LUTs")
	fs.String("listen", "", "Monitor listen address, e.g. :8080")
	fs.Int("window", 0, "Window size in pixels")
	fs.Bool("debug", false, "Enable debug logging")
}

// loadConfig reads path, or the defaults file when path is empty and the
// file exists. Without either every setting keeps its built-in default.
func loadConfig(path string) (*config.RenderConfig, error) {
	if path != "" {
		cfg, err := config.LoadRenderConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	if _, err := os.Stat(config.DefaultRenderConfigPath); err == nil {
		cfg, err := config.LoadRenderConfig(config.DefaultRenderConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", config.DefaultRenderConfigPath, err)
		}
		return cfg, nil
	}
	return config.EmptyRenderConfig(), nil
}

// applyFlags lets the flags explicitly set on fs override the config file.
func applyFlags(fs *flag.FlagSet, cfg *config.RenderConfig) {
	fs.Visit(func(f *flag.Flag) {
		value := f.Value.(flag.Getter).Get()
		switch f.Name {
		case "port":
			v := value.(string)
			cfg.SerialPort = &v
		case "out":
			v := value.(string)
			cfg.OutputDir = &v
		case "db":
			v := value.(string)
			cfg.DBPath = &v
		case "listen":
			v := value.(string)
			cfg.Listen = &v
		case "window":
			v := value.(int)
			cfg.WindowSize = &v
		case "debug":
			v := value.(bool)
			cfg.Debug = &v
		}
	})
}

// openSource opens the sample stream. The boolean is true for file and
// stdin input, which are replayed losslessly.
func openSource(cfg *config.RenderConfig, inputPath string) (serialmux.SerialMuxInterface, bool, error) {
	switch {
	case inputPath == "-":
		return serialmux.NewReaderSerialMux(io.NopCloser(os.Stdin), serialmux.WithLossless()), true, nil
	case inputPath != "":
		f, err := os.Open(inputPath)
		if err != nil {
			return nil, false, fmt.Errorf("failed to open input: %w", err)
		}
		return serialmux.NewReaderSerialMux(f, serialmux.WithLossless()), true, nil
	case cfg.GetSerialPort() != "":
		opts := serialmux.PortOptions{
			BaudRate: cfg.GetBaudRate(),
			DataBits: cfg.GetDataBits(),
			StopBits: cfg.GetStopBits(),
			Parity:   cfg.GetParity(),
		}
		mux, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), opts, serialmux.WithSubscriberBuffer(4))
		if err != nil {
			return nil, false, fmt.Errorf("failed to open sonar port: %w", err)
		}
		log.Printf("reading samples from %s (%s)", cfg.GetSerialPort(), opts)
		return mux, false, nil
	default:
		return nil, false, errors.New("one of -input or -port (or serial_port in the config) is required")
	}
}

func main() {
	flag.Parse()
	if *versionFlg {
		fmt.Println(version.String())
		return
	}
	log.Print(version.String())

	if err := run(); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

// run returns instead of exiting so that every deferred close runs.
func run() error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	applyFlags(flag.CommandLine, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	monitoring.SetDebug(cfg.GetDebug())

	source, recorded, err := openSource(cfg, *input)
	if err != nil {
		return err
	}
	defer source.Close()

	var store *lutstore.Store
	if cfg.GetDBPath() != "" {
		store, err = lutstore.Open(cfg.GetDBPath())
		if err != nil {
			return fmt.Errorf("failed to open LUT store: %w", err)
		}
		defer store.Close()
	}

	opts := render.Options{WindowSize: cfg.GetWindowSize(), Gain: cfg.GetGain()}
	if store != nil {
		opts.Store = store
	}
	renderer, err := render.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	var web *monitor.WebServer
	if cfg.GetListen() != "" {
		var admins []monitor.AdminRoutes
		if store != nil {
			admins = append(admins, store)
		}
		if !recorded {
			// The tail endpoint subscribes to the mux, which would stall
			// lossless replay of recorded input.
			admins = append(admins, source)
		}
		web = monitor.NewWebServer(monitor.WebServerConfig{
			Address: cfg.GetListen(),
			Source:  renderer,
			Admins:  admins,
		})
	}

	var plotter *monitor.CoveragePlotter
	if *plotDir != "" {
		plotter = monitor.NewCoveragePlotter(*plotDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var frames int
	var plotted int64
	handle := func(s *sonar.Sample) error {
		img, err := renderer.Render(s)
		if err != nil {
			return err
		}
		frames++

		if dir := cfg.GetOutputDir(); dir != "" {
			path := filepath.Join(dir, fmt.Sprintf("frame_%06d.png", frames))
			if err := img.WritePNG(path); err != nil {
				return err
			}
		}
		if web != nil {
			web.Publish(img, s)
		}
		if plotter != nil && renderer.Rebuilds() != plotted {
			plotted = renderer.Rebuilds()
			if _, err := plotter.Save(renderer.LUT(), fmt.Sprintf("lut_%03d", plotted)); err != nil {
				log.Printf("failed to plot LUT coverage: %v", err)
			}
		}
		return nil
	}

	// Subscribe before Monitor starts so that no line is missed.
	id, lines := source.Subscribe()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := source.Monitor(ctx)
		if err != nil && err != context.Canceled {
			log.Printf("failed to read samples: %v", err)
		}
		// End of recorded input: closing the source lets the consumer
		// drain what is buffered and return.
		source.Unsubscribe(id)
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		serialmux.Consume(ctx, lines, handle)
		log.Printf("rendered %d frames (%d LUT builds)", frames, renderer.Rebuilds())
		if web == nil {
			stop()
		}
	}()

	if web != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := web.Start(ctx); err != nil {
				log.Printf("monitor server: %v", err)
				stop()
			}
		}()
	}

	wg.Wait()
	return nil
}
