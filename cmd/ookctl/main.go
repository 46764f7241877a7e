package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ystepanoff/ookctl"
	"github.com/ystepanoff/ookctl/config"
	"github.com/ystepanoff/ookctl/mqttbridge"
	"github.com/ystepanoff/ookctl/protocol"
	"github.com/ystepanoff/ookctl/transport"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	sniff := flag.String("sniff", "", "Listen for a device kind (ev1527 or lightstrip) and print decoded codes instead of running the daemon")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *debug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		log.Printf("Loaded %d devices from %s", len(cfg.Devices), *configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *sniff != "" {
		if err := runSniffer(ctx, cfg, *sniff, *debug); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := run(ctx, cfg, *debug); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, debug bool) error {
	opts := []ookctl.Option{ookctl.WithDebug(debug)}

	var metricsServer *http.Server
	if cfg.Prometheus.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, ookctl.WithMetrics(transport.NewMetrics(reg)))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Prometheus.Listen, Handler: mux}
		go func() {
			log.Printf("Prometheus metrics available at http://%s/metrics", cfg.Prometheus.Listen)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctrl, err := ookctl.Open(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to open transceiver: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Printf("Failed to close controller: %v", err)
		}
	}()

	if cfg.MQTT.Enabled {
		bridge := mqttbridge.New(cfg, ctrl.Scheduler)
		if err := bridge.Start(); err != nil {
			return err
		}
		defer bridge.Close()
	} else {
		log.Printf("MQTT disabled, nothing will feed the scheduler")
	}

	log.Printf("ookctl running with %d devices", len(cfg.Devices))
	<-ctx.Done()
	log.Printf("Shutting down...")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}

func runSniffer(ctx context.Context, cfg *config.Config, kindName string, debug bool) error {
	kind, err := protocol.ParseKind(kindName)
	if err != nil {
		return err
	}
	ctrl, err := ookctl.Open(ctx, cfg, ookctl.WithDebug(debug))
	if err != nil {
		return fmt.Errorf("failed to open transceiver: %w", err)
	}
	defer ctrl.Close()

	sniffer, err := ctrl.Sniffer(kind)
	if err != nil {
		return err
	}
	return sniffer.Listen(ctx, func(p transport.Packet) {
		fmt.Printf("%s %s code=%#07x raw=% x\n", p.At.Format(time.RFC3339), p.Kind, p.Code, p.Raw)
	})
}
