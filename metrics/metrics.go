// Package metrics exposes radiod's Prometheus endpoint: channel
// count, RTP packet/byte counters, FFT block rate, front-end
// overrange counts, and host CPU/memory gauges sampled periodically
// in the background.
//
// Grounded in ubersdr's prometheus.go (GaugeVec construction via
// promauto) and main.go's promhttp.Handler() exposition; the host
// sampling loop follows load_history.go's ticker-driven gopsutil
// polling pattern.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Registry holds every metric collector radiod updates.
type Registry struct {
	reg *prometheus.Registry

	ActiveChannels prometheus.Gauge
	ChannelsTotal  prometheus.Counter

	RTPPacketsSent *prometheus.CounterVec // label: ssrc
	RTPBytesSent   *prometheus.CounterVec
	RTPSendErrors  *prometheus.CounterVec

	FFTBlocksTotal prometheus.Counter
	FFTBlockRate   prometheus.Gauge

	FrontendOverranges   prometheus.Counter
	FrontendSamplesTotal prometheus.Counter

	HostCPUPercent prometheus.Gauge
	HostMemPercent prometheus.Gauge
}

// NewRegistry builds a fresh metric set bound to its own
// prometheus.Registry (not the global default, so multiple instances
// in tests don't collide).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		ActiveChannels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radiod_active_channels",
			Help: "Number of channels currently in use.",
		}),
		ChannelsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "radiod_channels_created_total",
			Help: "Total channels created since startup.",
		}),
		RTPPacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiod_rtp_packets_sent_total",
			Help: "RTP packets sent, per channel SSRC.",
		}, []string{"ssrc"}),
		RTPBytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiod_rtp_bytes_sent_total",
			Help: "RTP payload bytes sent, per channel SSRC.",
		}, []string{"ssrc"}),
		RTPSendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiod_rtp_send_errors_total",
			Help: "RTP socket send errors, per channel SSRC.",
		}, []string{"ssrc"}),
		FFTBlocksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "radiod_fft_blocks_total",
			Help: "Master filter blocks published to the ring since startup.",
		}),
		FFTBlockRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radiod_fft_block_rate_hz",
			Help: "Recent master filter block publish rate.",
		}),
		FrontendOverranges: factory.NewCounter(prometheus.CounterOpts{
			Name: "radiod_frontend_overranges_total",
			Help: "Front-end ADC overrange events since startup.",
		}),
		FrontendSamplesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "radiod_frontend_samples_total",
			Help: "Front-end IF samples consumed since startup.",
		}),
		HostCPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radiod_host_cpu_percent",
			Help: "Host CPU utilization percentage, averaged across cores.",
		}),
		HostMemPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radiod_host_mem_percent",
			Help: "Host memory utilization percentage.",
		}),
	}
}

// Handler returns the HTTP handler serving this registry's metrics in
// the Prometheus exposition format, for mounting at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RunHostSampler periodically samples host CPU/memory via gopsutil
// until ctx is canceled.
func (r *Registry) RunHostSampler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
				r.HostCPUPercent.Set(pcts[0])
			}
			if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
				r.HostMemPercent.Set(vm.UsedPercent)
			}
		}
	}
}
