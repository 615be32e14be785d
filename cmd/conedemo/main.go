// Command conedemo computes the transport cones of a lookup fixture and
// reports their geometry.
//
// Flag defaults are read from CONES_* environment variables, which may be
// set in a .env file in the working directory.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/gogpu/cones"
	"github.com/gogpu/cones/geodesy"
	_ "github.com/gogpu/cones/gpu" // GPU compute when a device is available
	"github.com/gogpu/cones/internal/compute"
	"github.com/gogpu/cones/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	var (
		lookupPath  = flag.String("lookup", "", "JSON lookup fixture (default: built-in sample)")
		stepDeg     = flag.Float64("step", envFloat("CONES_STEP_DEG", 5), "angular step in degrees")
		year        = flag.Int("year", envInt("CONES_YEAR", 2000), "active year")
		extruded    = flag.Float64("extruded", envFloat("CONES_EXTRUDED_HEIGHT", 1_000_000), "slant length of unclipped cones in meters")
		projection  = flag.String("projection", envString("CONES_PROJECTION", "globe"), "display projection: globe, equirectangular or mercator")
		metricsAddr = flag.String("metrics", envString("CONES_METRICS_ADDR", ""), "serve Prometheus metrics on this address and wait for interrupt")
		output      = flag.String("png", "", "write a footprint preview to this PNG file")
		size        = flag.Int("size", 800, "preview size in pixels")
		noLimits    = flag.Bool("nolimits", false, "switch boundary clipping off")
		forceCPU    = flag.Bool("cpu", false, "use the CPU backend even when a GPU is available")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	cones.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	lookup, bboxes, err := readFixture(*lookupPath)
	if err != nil {
		return fmt.Errorf("failed to load fixture: %w", err)
	}

	proj, err := cones.ParseProjection(*projection)
	if err != nil {
		return fmt.Errorf("invalid projection: %w", err)
	}
	cfg := cones.DefaultConfig()
	cfg.ConeStep = geodesy.Radians(*stepDeg)
	cfg.Year = *year
	cfg.ExtrudedHeight = *extruded
	cfg.ProjectionInit = proj
	cfg.ProjectionEnd = proj
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store := cones.NewStore()
	opts := []cones.Option{cones.WithParams(cones.NewParams(cfg)), cones.WithRenderer(store)}
	if *forceCPU {
		cpu := compute.NewCPUBackend(0)
		defer cpu.Close()
		opts = append(opts, cones.WithBackend(cpu))
	}
	ctrl := cones.NewController(opts...)
	defer ctrl.Close()

	start := time.Now()
	list, err := ctrl.Load(lookup, bboxes)
	if err != nil {
		return fmt.Errorf("failed to compute cones: %w", err)
	}
	log.Printf("Computed %d cones on %s in %v", len(list), ctrl.Backend().Name(), time.Since(start))

	if *noLimits {
		if err := dropLimits(ctrl); err != nil {
			return fmt.Errorf("failed to recompute without limits: %w", err)
		}
	}

	printReport(os.Stdout, ctrl, store)

	if *output != "" {
		if err := writePreview(*output, *size, ctrl.Cones(), store); err != nil {
			return fmt.Errorf("failed to write preview: %w", err)
		}
		log.Printf("Preview saved to %s (%dx%d)", *output, *size, *size)
	}

	if *metricsAddr != "" {
		if err := serveMetrics(*metricsAddr); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}
	return nil
}

func readFixture(path string) (cones.Lookup, []cones.BBox, error) {
	if path == "" {
		return loadFixture(bytes.NewReader(sampleFixture))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return loadFixture(f)
}

// dropLimits switches clipping off on every cone and ticks until the
// controller flushes the change.
func dropLimits(ctrl *cones.Controller) error {
	for _, c := range ctrl.Cones() {
		c.SetWithLimits(false)
	}
	for ctrl.LimitsPending() {
		if err := ctrl.Params().Tick(); err != nil {
			return err
		}
	}
	return nil
}

func printReport(w io.Writer, ctrl *cones.Controller, store *cones.Store) {
	cfg := ctrl.Params().Config()
	fmt.Fprintf(w, "year %d, step %.2f°, %s projection\n\n", cfg.Year, geodesy.Degrees(cfg.ConeStep), cfg.ProjectionEnd)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONE\tSUMMIT\tELEVATION\tLIMITS\tCENTER\tRADIUS")
	for _, c := range ctrl.Cones() {
		g, _ := store.Geometry(c)
		elevation := "-"
		if e, ok := c.Elevation(cfg.Year); ok {
			elevation = fmt.Sprintf("%.1f°", geodesy.Degrees(e))
		}
		if g.Hidden() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\thidden\t\n", c, c.Position(), elevation, c.WithLimits())
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t(%.2f, %.2f, %.2f)\t%.3f\n", c, c.Position(), elevation, c.WithLimits(),
			g.Sphere[0], g.Sphere[1], g.Sphere[2], g.Sphere[3])
	}
	_ = tw.Flush()

	if hidden := ctrl.WithoutDisplay(); len(hidden) > 0 {
		fmt.Fprintf(w, "\n%d cones without data for %d\n", len(hidden), cfg.Year)
	}
}

func serveMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Printf("Serving metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(envString(key, ""), 64)
	if err != nil {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(envString(key, ""))
	if err != nil {
		return def
	}
	return v
}
