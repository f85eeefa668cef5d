package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-massing/internal/config"
	"github.com/joeblew999/plat-massing/internal/logging"
	"github.com/joeblew999/plat-massing/internal/server"
	"github.com/joeblew999/plat-massing/internal/service"
)

// Options defines the CLI flags and env vars for the massing server.
// Flags: --host, --port, --config
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_CONFIG
// Everything else comes from the config file and MASSING_* env vars.
type Options struct {
	Host   string `doc:"Host to bind to (overrides server.host)"`
	Port   int    `doc:"Port to listen on (overrides server.port)" short:"p"`
	Config string `doc:"Path to a YAML config file" short:"c"`
}

func load(opts *Options) (*config.Config, *slog.Logger) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	return cfg, logging.Setup(cfg.Log.Level, cfg.Log.Format)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var srv *server.Server
		var httpSrv *http.Server

		hooks.OnStart(func() {
			cfg, logger := load(opts)
			srv = server.New(cfg, logger)

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			baseURL := fmt.Sprintf("http://%s", addr)

			fmt.Println()
			fmt.Printf("plat-massing API server starting...\n")
			fmt.Printf("  Server:   %s\n", baseURL)
			fmt.Printf("  Overpass: %s\n", cfg.Overpass.Endpoint)
			fmt.Println()
			fmt.Printf("  Docs:     %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI:  %s/openapi.json\n", baseURL)
			fmt.Printf("  Scene:    %s/scene.obj, %s/scene.geojson\n", baseURL, baseURL)
			fmt.Printf("  Metrics:  %s/metrics\n", baseURL)
			fmt.Println()

			httpSrv = &http.Server{Addr: addr, Handler: srv}
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("server error", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if httpSrv != nil {
				httpSrv.Shutdown(context.Background())
			}
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "massing"
	cli.Root().Short = "Extruded context buildings from OpenStreetMap"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, logger := load(opts)
			cfg.Archive.Enabled = false
			cfg.Valkey.Enabled = false
			srv := server.New(cfg, logger)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// create subcommand: one run against the in-memory engine, then export
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Fetch buildings around a point, extrude them and export the scene",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, logger := load(opts)
			srv := server.New(cfg, logger)
			defer srv.Close()

			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			radius, _ := cmd.Flags().GetFloat64("radius")
			objPath, _ := cmd.Flags().GetString("obj")
			geojsonPath, _ := cmd.Flags().GetString("geojson")

			report, err := srv.Context().Create(cmd.Context(), service.CreateRequest{
				Latitude:  lat,
				Longitude: lon,
				Radius:    radius,
			})
			if err != nil && report.History == 0 {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %d failures: %v\n", len(report.Failures), err)
			}
			fmt.Printf("Created %d extrusions from %d footprints (%d skipped)\n",
				report.Extrusions, report.Footprints, report.Skipped)

			if objPath != "" {
				if err := writeFile(objPath, srv.Scene().WriteOBJ); err != nil {
					fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", objPath, err)
					os.Exit(1)
				}
				fmt.Printf("Wrote %s\n", objPath)
			}
			if geojsonPath != "" {
				data, err := srv.Scene().FeatureCollection().MarshalJSON()
				if err == nil {
					err = os.WriteFile(geojsonPath, data, 0o644)
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", geojsonPath, err)
					os.Exit(1)
				}
				fmt.Printf("Wrote %s\n", geojsonPath)
			}
		}),
	}
	createCmd.Flags().Float64("lat", 0, "Latitude of the site in degrees")
	createCmd.Flags().Float64("lon", 0, "Longitude of the site in degrees")
	createCmd.Flags().Float64("radius", 250, "Search radius in metres")
	createCmd.Flags().String("obj", "", "Write the scene as Wavefront OBJ")
	createCmd.Flags().String("geojson", "", "Write the scene as GeoJSON")
	createCmd.MarkFlagRequired("lat")
	createCmd.MarkFlagRequired("lon")
	cli.Root().AddCommand(createCmd)

	cli.Run()
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
