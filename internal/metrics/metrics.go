package metrics

import (
	"net/http"
	"time"

	"github.com/flowpbx/sccpd/internal/sccp"
	"github.com/flowpbx/sccpd/internal/sccp/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegistryProvider exposes the session, device and line registries.
type RegistryProvider interface {
	SessionCount() int
	Devices() []*sccp.Device
	Lines() []*sccp.Line
}

// ChannelProvider exposes the live channels.
type ChannelProvider interface {
	Channels() []sccp.ChannelSnapshot
}

var registrationStates = []sccp.RegistrationState{sccp.Unregistered, sccp.Registering, sccp.Registered}

var callStates = []sccp.CallState{
	sccp.StateOffHook, sccp.StateDialing, sccp.StateRingOut, sccp.StateRinging,
	sccp.StateConnected, sccp.StateHold,
}

// Collector is a prometheus.Collector that reads the registries at scrape
// time.
type Collector struct {
	registry  RegistryProvider
	channels  ChannelProvider
	startTime time.Time

	sessionsDesc *prometheus.Desc
	devicesDesc  *prometheus.Desc
	linesDesc    *prometheus.Desc
	channelsDesc *prometheus.Desc
	uptimeDesc   *prometheus.Desc
}

// NewCollector creates a collector. channels may be nil.
func NewCollector(registry RegistryProvider, channels ChannelProvider, startTime time.Time) *Collector {
	return &Collector{
		registry:  registry,
		channels:  channels,
		startTime: startTime,

		sessionsDesc: prometheus.NewDesc(
			"sccpd_sessions",
			"Number of open phone connections",
			nil, nil,
		),
		devicesDesc: prometheus.NewDesc(
			"sccpd_devices",
			"Number of known devices by registration state",
			[]string{"state"}, nil,
		),
		linesDesc: prometheus.NewDesc(
			"sccpd_lines",
			"Number of configured lines",
			nil, nil,
		),
		channelsDesc: prometheus.NewDesc(
			"sccpd_channels",
			"Number of live channels by call state",
			[]string{"state"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"sccpd_uptime_seconds",
			"Seconds since the sccpd process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionsDesc
	ch <- c.devicesDesc
	ch <- c.linesDesc
	ch <- c.channelsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.GaugeValue,
		float64(c.registry.SessionCount()))

	// Every state is reported so absent states read as zero, not stale.
	devices := make(map[sccp.RegistrationState]int)
	for _, d := range c.registry.Devices() {
		devices[d.State()]++
	}
	for _, st := range registrationStates {
		ch <- prometheus.MustNewConstMetric(c.devicesDesc, prometheus.GaugeValue,
			float64(devices[st]), st.String())
	}

	ch <- prometheus.MustNewConstMetric(c.linesDesc, prometheus.GaugeValue,
		float64(len(c.registry.Lines())))

	if c.channels != nil {
		counts := make(map[string]int)
		for _, snap := range c.channels.Channels() {
			counts[snap.State]++
		}
		for _, st := range callStates {
			ch <- prometheus.MustNewConstMetric(c.channelsDesc, prometheus.GaugeValue,
				float64(counts[st.String()]), st.String())
		}
	}

	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds())
}

// Counters counts protocol traffic. It implements sccp.Observer.
type Counters struct {
	messages *prometheus.CounterVec
	closes   *prometheus.CounterVec
}

func NewCounters() *Counters {
	return &Counters{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sccpd_messages_total",
			Help: "SCCP messages by direction and message kind",
		}, []string{"direction", "kind"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sccpd_session_closes_total",
			Help: "Closed phone sessions by reason",
		}, []string{"reason"}),
	}
}

func (c *Counters) MessageReceived(id wire.MessageID) {
	c.messages.WithLabelValues("in", id.String()).Inc()
}

func (c *Counters) MessageSent(id wire.MessageID) {
	c.messages.WithLabelValues("out", id.String()).Inc()
}

func (c *Counters) SessionClosed(reason string) {
	c.closes.WithLabelValues(reason).Inc()
}

// NewRegistry builds a registry holding the collector, the counters and
// the Go runtime and process collectors.
func NewRegistry(c *Collector, counters *Counters) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{
		c,
		counters.messages,
		counters.closes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
