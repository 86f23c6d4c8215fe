// Command harbord stands up one harbor process: a handle registry, a
// reference dispatcher, and a ScriptServiceHost for the one initial
// service named by --service, exercising the send/callback/command/error contract end to
// end.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/relayforge/actorcore/go/config"
	"github.com/relayforge/actorcore/go/dispatch"
	"github.com/relayforge/actorcore/go/gateway"
	"github.com/relayforge/actorcore/go/metrics"
	"github.com/relayforge/actorcore/go/ops"
	"github.com/relayforge/actorcore/go/scripthost"
)

type options struct {
	config.Config
	MetricsAddr string `long:"metrics-addr" default:":9090" description:"address to serve /metrics on"`
	GatewayAddr string `long:"gateway-addr" default:":7000" description:"address the frame gateway listens on"`
	Service     string `long:"service" required:"true" description:"name of the initial service script to launch"`
	ServiceArgs string `long:"service-args" description:"opaque argument string passed to the initial service"`
}

func main() {
	var opts options
	var parser = flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	var logger = ops.New()
	var registry = prometheus.NewRegistry()
	var stats = metrics.New(registry)

	var harbor = dispatch.NewHarbor(&opts.Config, logger)
	defer harbor.Shutdown()

	var handleID = harbor.Spawn()
	var host = scripthost.NewHost(handleID, harbor, &opts.Config, logger)
	defer host.Close()

	if err := host.Init(scripthost.InitArgs{
		ServiceName: opts.Service,
		ServiceArgs: opts.ServiceArgs,
	}); err != nil {
		log.WithError(err).Fatal("launching initial service failed")
	}
	stats.HandlesLive.Set(float64(harbor.Registry().Len()))
	stats.SlotSize.Set(float64(harbor.Registry().SlotSize()))
	stats.HostMemory.WithLabelValues(handleLabel(handleID)).Set(float64(host.MemoryUsed()))

	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(opts.MetricsAddr, nil); err != nil {
			log.WithError(err).Error("metrics server exited")
		}
	}()

	var gw = gateway.New(harbor, logger)
	defer gw.Close()
	go func() {
		if err := gw.Serve(opts.GatewayAddr); err != nil {
			log.WithError(err).Error("gateway exited")
		}
	}()

	var sig = make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
}

func handleLabel(handle uint32) string {
	return fmt.Sprintf(":%08x", handle)
}
