package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile   string
	LayoutFile   string
	OutputFile   string
	RenderFormat string
	Connect      string
	HttpPort     int
	HttpMode     bool
	RenderOnly   bool
}

// runner is the surface of App that main drives
type runner interface {
	ApplyOptions(opts AppOptions)
	RunRender() error
	RunService(ctx context.Context) error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if err == flag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, app runner) error {
	fs := flag.NewFlagSet("gridlink", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.LayoutFile, "layout", "", "Arena layout YAML to load before rendering or serving")
	fs.StringVar(&opts.OutputFile, "output", "grid.png", "Output file for -render mode")
	fs.StringVar(&opts.RenderFormat, "format", "png", "Render format for -render: png, vector or svg")
	fs.StringVar(&opts.Connect, "connect", "", "Peer address to connect to on startup (overrides link.peer)")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (overrides http.port)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Force the HTTP server on")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render the layout to -output and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "gridlink version: %s\n", Version)
	app.ApplyOptions(opts)

	if opts.RenderOnly {
		return app.RunRender()
	}

	fmt.Fprintln(out, "gridlink service starting...")
	return app.RunService(context.Background())
}
