package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/gridlink/rover"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultConfigFile = "config.yaml"

// App encapsulates the application state and dependencies
type App struct {
	Config     *rover.Config
	Logger     zerolog.Logger
	Store      *rover.Store
	Bus        *rover.EventBus
	Dispatcher *rover.Dispatcher
	Transport  rover.Transport
	MQTT       *rover.MQTTTransport
	Publisher  *rover.Publisher
	Session    *rover.Session
	Controller *rover.Controller

	// LogOutput receives console logs; defaults to stdout
	LogOutput io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	LayoutFile   string
	OutputFile   string
	RenderFormat string
	Connect      string
	HttpPort     int
	HttpMode     bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Logger:     zerolog.Nop(),
		Bus:        rover.NewEventBus(),
		LogOutput:  os.Stdout,
		ConfigFile: defaultConfigFile,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.LayoutFile = opts.LayoutFile
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.Connect = opts.Connect
	a.HttpPort = opts.HttpPort
	a.HttpMode = opts.HttpMode
}

// setupLogging builds the root logger: console output with RFC3339 UTC
// timestamps, or plain JSON lines when cfg.JSON is set.
func setupLogging(cfg rover.LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	w := out
	if !cfg.JSON {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// loadConfig reads the config file and applies CLI overrides. A missing
// default config.yaml is not an error; defaults and GRIDLINK_* variables
// are used instead.
func (a *App) loadConfig() (*rover.Config, error) {
	path := a.ConfigFile
	if path == defaultConfigFile {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}

	cfg, err := rover.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if a.Connect != "" {
		cfg.Link.Peer = a.Connect
	}
	if a.HttpPort != 0 {
		cfg.HTTP.Port = a.HttpPort
	}
	if a.HttpMode {
		cfg.HTTP.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a.Config = cfg
	a.Logger = setupLogging(cfg.Log, a.LogOutput)
	if path != "" {
		a.Logger.Info().Str("path", path).Msg("Loaded config")
	} else {
		a.Logger.Info().Msg("No config file, using defaults and environment")
	}
	return cfg, nil
}

// loadLayout seeds the store from LayoutFile when one is given
func (a *App) loadLayout() error {
	if a.LayoutFile == "" {
		return nil
	}
	layout, err := rover.LoadLayout(a.LayoutFile)
	if err != nil {
		return err
	}
	skipped, err := layout.Apply(a.Store)
	if err != nil {
		return fmt.Errorf("failed to apply layout %s: %w", a.LayoutFile, err)
	}
	for _, o := range skipped {
		a.Logger.Warn().Int("id", o.ID).Int("x", o.X).Int("y", o.Y).Msg("Skipped layout obstacle")
	}
	a.Logger.Info().
		Str("path", a.LayoutFile).
		Int("obstacles", len(layout.Obstacles)-len(skipped)).
		Msg("Loaded layout")
	return nil
}

// build wires store, dispatcher, transport, session and controller from cfg
func (a *App) build(cfg *rover.Config) error {
	a.Store = rover.NewStoreWithVehicle(cfg.Vehicle.Template())
	if err := a.loadLayout(); err != nil {
		return err
	}

	notifiers := rover.Notifiers{a.Bus}

	if cfg.Link.Transport == rover.TransportMQTT || cfg.MQTT.PublishState {
		a.MQTT = rover.NewMQTTTransport(cfg.MQTT, a.Logger)
	}
	if cfg.MQTT.PublishState {
		a.Publisher = rover.NewPublisher(a.MQTT.Client(), cfg.MQTT.Prefix, a.Logger)
		notifiers = append(notifiers, a.Publisher)
	}

	a.Dispatcher = rover.NewDispatcher(a.Store, notifiers, a.Logger)

	switch cfg.Link.Transport {
	case rover.TransportMQTT:
		a.Transport = a.MQTT
	default:
		a.Transport = rover.NewTCPTransport(cfg.Link.Listen, cfg.Link.ChannelBasePort)
	}

	a.Session = rover.NewSession(a.Transport, a.Dispatcher.HandleChunk,
		rover.WithLogger(a.Logger),
		rover.WithNotifier(notifiers),
		rover.WithOnLinkUp(a.resetFraming),
		rover.WithReconnectInterval(cfg.Link.ReconnectInterval),
		rover.WithConnectTimeout(cfg.Link.ConnectTimeout),
		rover.WithFallbackChannel(cfg.Link.FallbackChannel),
		rover.WithAlternateChannelPeers(cfg.Link.AlternateChannelPeers...),
	)
	a.Controller = rover.NewController(a.Store, a.Session, notifiers, a.Logger)
	return nil
}

// resetFraming drops a half-received line left by the previous link so it
// never merges with the first chunk of the new one
func (a *App) resetFraming(peer rover.Peer) {
	a.Logger.Debug().Str("peer", peer.Address).Msg("Resetting line framing for new link")
	a.Dispatcher.Reset()
}

// RunService runs the link session and the HTTP server until ctx is
// cancelled or SIGINT/SIGTERM arrives
func (a *App) RunService(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := a.build(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Logger.Info().
		Str("version", Version).
		Str("transport", cfg.Link.Transport).
		Str("role", cfg.Link.Role).
		Msg("Starting gridlink service")

	if a.MQTT != nil {
		if err := a.MQTT.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.startLink(gctx)
	})
	if cfg.HTTP.Enabled {
		g.Go(func() error {
			return a.serveHTTP(gctx, cfg.HTTP.Port)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.Logger.Info().Msg("Service stopped")
	return nil
}

// startLink starts listening and/or dials the configured peer, per role.
// A failed first dial is logged, not fatal; POST /link/connect retries it.
func (a *App) startLink(ctx context.Context) error {
	link := a.Config.Link
	if link.Listens() {
		if err := a.Session.Start(ctx); err != nil {
			return fmt.Errorf("failed to start listener: %w", err)
		}
	}
	if link.Dials() && link.Peer != "" {
		err := a.Session.Connect(ctx, rover.Peer{Address: link.Peer}, link.ServiceID)
		if err != nil && !errors.Is(err, rover.ErrSuperseded) {
			a.Logger.Warn().Err(err).Str("peer", link.Peer).Msg("Initial connect failed")
		}
	}
	return nil
}

func (a *App) serveHTTP(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           a.httpHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.Logger.Info().Int("port", port).Msg("HTTP server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

func (a *App) httpHandler() http.Handler {
	return newHTTPServer(a.Controller, a.Session, a.Bus, a.Config.Link, a.Logger)
}

func (a *App) shutdown() {
	a.Logger.Info().Msg("Shutting down...")
	if a.Session != nil {
		_ = a.Session.Close()
	}
	if a.MQTT != nil {
		a.MQTT.Disconnect()
	}
}

// RunRender renders the layout (and configured vehicle body) to OutputFile
func (a *App) RunRender() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.Store = rover.NewStoreWithVehicle(cfg.Vehicle.Template())
	if err := a.loadLayout(); err != nil {
		return err
	}

	write, err := snapshotWriter(a.RenderFormat)
	if err != nil {
		return err
	}

	f, err := os.Create(a.OutputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := write(f, a.Store.Snapshot()); err != nil {
		return fmt.Errorf("failed to render %s: %w", a.RenderFormat, err)
	}
	a.Logger.Info().Str("path", a.OutputFile).Str("format", a.RenderFormat).Msg("Rendered grid")
	return nil
}

// snapshotWriter picks the encoder for a render format
func snapshotWriter(format string) (func(io.Writer, rover.Snapshot) error, error) {
	switch strings.ToLower(format) {
	case "", "png", "raster":
		return rover.NewGridRenderer().WritePNG, nil
	case "vector":
		return rover.NewVectorRenderer().RenderToPNG, nil
	case "svg":
		return rover.NewVectorRenderer().RenderToSVG, nil
	case "geojson":
		return func(w io.Writer, snap rover.Snapshot) error {
			return json.NewEncoder(w).Encode(rover.SnapshotToGeoJSON(snap))
		}, nil
	default:
		return nil, fmt.Errorf("unknown render format %q (want png, vector, svg or geojson)", format)
	}
}
