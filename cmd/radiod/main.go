// Command radiod runs one instance of the SDR channelizer: it reads an
// INI configuration file and a YAML preset bundle, brings up a front
// end (no hardware drivers are built in; -selftest or hardware =
// "selftest" selects a synthetic generator, any other hardware name is
// a fatal startup error), and
// streams demodulated channels over RTP while answering the TLV
// status/command protocol on the configured multicast group.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ka9q/radiod/channel"
	"github.com/ka9q/radiod/config"
	"github.com/ka9q/radiod/engine"
	"github.com/ka9q/radiod/frontend"
	"github.com/ka9q/radiod/healthapi"
	"github.com/ka9q/radiod/mcpapi"
	"github.com/ka9q/radiod/metrics"
	"github.com/ka9q/radiod/mqttpub"
	"github.com/ka9q/radiod/wsadmin"
)

func main() {
	configFile := flag.String("config", "/etc/radio/radiod.conf", "Path to INI configuration file")
	selftest := flag.Bool("selftest", false, "Run against a synthetic front end instead of hardware")
	metricsListen := flag.String("metrics-listen", "", "Prometheus metrics HTTP listen address (empty disables)")
	mcpListen := flag.String("mcp-listen", "", "MCP tool server HTTP listen address (empty disables)")
	adminWSListen := flag.String("admin-ws-listen", "", "Read-only admin WebSocket listen address (empty disables)")
	grpcListen := flag.String("grpc-health-listen", "", "gRPC health check listen address (empty disables)")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker URL for channel status publishing (empty disables)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("radiod: load config: %v", err)
	}

	var presets map[string]config.Preset
	if cfg.Global.PresetsFile != "" {
		presets, err = config.LoadPresets(cfg.Global.PresetsFile)
		if err != nil {
			log.Fatalf("radiod: load presets: %v", err)
		}
	}

	var driver frontend.Driver
	if *selftest || cfg.Global.Hardware == "selftest" {
		driver = frontend.NewSynthetic(48000*64, 5000, 0.3, 0.05, 1)
	} else {
		log.Fatalf("radiod: front end %q has no driver built in; hardware drivers are out of scope, use -selftest", cfg.Global.Hardware)
	}

	eng, err := engine.New(cfg, presets, driver)
	if err != nil {
		log.Fatalf("radiod: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("radiod: start: %v", err)
	}
	log.Printf("radiod: started, hardware=%q status=%q data=%q", cfg.Global.Hardware, cfg.Global.StatusGroup, cfg.Global.DataGroup)

	var health *healthapi.Server
	if *grpcListen != "" {
		health = healthapi.New()
		lis, err := net.Listen("tcp", *grpcListen)
		if err != nil {
			log.Fatalf("radiod: grpc health listen: %v", err)
		}
		go func() {
			if err := health.Serve(lis); err != nil {
				log.Printf("radiod: grpc health server stopped: %v", err)
			}
		}()
		health.SetServing()
		defer health.Stop()
	}

	samplePeriod := time.Duration(cfg.Global.BlocktimeMs*float64(cfg.Global.UpdateBlocks)) * time.Millisecond

	if *metricsListen != "" {
		reg := metrics.NewRegistry()
		go reg.RunHostSampler(ctx, samplePeriod)
		eng.AttachMetrics(ctx, reg, samplePeriod)
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		srv := &http.Server{Addr: *metricsListen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("radiod: metrics server stopped: %v", err)
			}
		}()
		defer srv.Close()
	}

	var hub *wsadmin.Hub
	if *adminWSListen != "" {
		hub = wsadmin.NewHub()
		mux := http.NewServeMux()
		mux.HandleFunc("/ws/admin", hub.ServeHTTP)
		srv := &http.Server{Addr: *adminWSListen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("radiod: admin websocket server stopped: %v", err)
			}
		}()
		defer srv.Close()

		go func() {
			ticker := time.NewTicker(samplePeriod)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					for _, ch := range eng.Registry().All() {
						hub.Broadcast(ch)
					}
				}
			}
		}()
	}

	if *mcpListen != "" {
		srv := mcpapi.NewServer(eng.Registry(), func(req mcpapi.CreateRequest) (*channel.Channel, error) {
			return eng.CreateFromMCP(req.Frequency, req.Mode, req.Preset, req.LowEdge, req.HighEdge, req.KaiserBeta)
		})
		httpSrv := &http.Server{Addr: *mcpListen, Handler: srv}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("radiod: mcp server stopped: %v", err)
			}
		}()
		defer httpSrv.Close()
	}

	if *mqttBroker != "" {
		pub, err := mqttpub.New(mqttpub.Config{
			Broker:          *mqttBroker,
			Instance:        cfg.Global.Description,
			PublishInterval: samplePeriod,
			QoS:             0,
		}, eng.Registry())
		if err != nil {
			log.Printf("radiod: mqtt publisher: %v", err)
		} else {
			go pub.Run(ctx)
			defer pub.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("radiod: shutting down")
	if health != nil {
		health.SetNotServing()
	}
	cancel()
	eng.Stop()
}
