package observability

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"

    "paradis/pkg/memkv"
)

// HubMetrics counts routing hub activity.
type HubMetrics struct {
    Sent        prometheus.Counter
    Received    prometheus.Counter
    Duplicates  prometheus.Counter
    Delivered   prometheus.Counter
    Routed      prometheus.Counter
    Malformed   prometheus.Counter
    Dropped     prometheus.Counter
    Links       prometheus.Gauge

    SeenKeys    prometheus.GaugeFunc
    SeenExpired prometheus.CounterFunc
    SeenRefused prometheus.CounterFunc
}

// NewHubMetrics registers hub metrics on reg. A nil reg gets a private
// registry so several hubs can live in one process. seen reports the
// dedup store; it is read at scrape time.
func NewHubMetrics(reg prometheus.Registerer, seen func() memkv.Stats) *HubMetrics {
    if reg == nil { reg = prometheus.NewRegistry() }
    if seen == nil { seen = func() memkv.Stats { return memkv.Stats{} } }
    f := promauto.With(reg)
    return &HubMetrics{
        Sent: f.NewCounter(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "sent_total",
            Help: "Packets passed to Send.",
        }),
        Received: f.NewCounter(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "received_total",
            Help: "Packets decoded from connections.",
        }),
        Duplicates: f.NewCounter(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "duplicates_total",
            Help: "Decoded packets discarded as already processed.",
        }),
        Delivered: f.NewCounter(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "delivered_total",
            Help: "Packets pushed to the local inbox.",
        }),
        Routed: f.NewCounter(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "routed_writes_total",
            Help: "Packet copies written to connections.",
        }),
        Malformed: f.NewCounter(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "malformed_total",
            Help: "Connections torn down after undecodable input.",
        }),
        Dropped: f.NewCounter(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "dropped_links_total",
            Help: "Connections removed after errors or close.",
        }),
        Links: f.NewGauge(prometheus.GaugeOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "links",
            Help: "Live connections.",
        }),
        SeenKeys: f.NewGaugeFunc(prometheus.GaugeOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "seen_keys",
            Help: "Entries in the dedup store, including expired ones not yet collected.",
        }, func() float64 { return float64(seen().Keys) }),
        SeenExpired: f.NewCounterFunc(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "seen_expired_total",
            Help: "Dedup entries removed after their TTL.",
        }, func() float64 { return float64(seen().Expired) }),
        SeenRefused: f.NewCounterFunc(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "hub", Name: "seen_refused_total",
            Help: "Dedup marks refused because the store was full.",
        }, func() float64 { return float64(seen().Refused) }),
    }
}

// NodeMetrics counts facade activity.
type NodeMetrics struct {
    Published  prometheus.Counter
    SendErrors prometheus.Counter
    Saves      prometheus.Counter
    UDPDropped prometheus.GaugeFunc
}

// NewNodeMetrics registers node metrics on reg. dropped reports datagrams
// discarded by the UDP layer.
func NewNodeMetrics(reg prometheus.Registerer, dropped func() float64) *NodeMetrics {
    if reg == nil { reg = prometheus.NewRegistry() }
    f := promauto.With(reg)
    return &NodeMetrics{
        Published: f.NewCounter(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "node", Name: "published_total",
            Help: "Packet received events published on the bus.",
        }),
        SendErrors: f.NewCounter(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "node", Name: "send_errors_total",
            Help: "Bus requests that failed.",
        }),
        Saves: f.NewCounter(prometheus.CounterOpts{
            Namespace: "paradis", Subsystem: "node", Name: "recent_saves_total",
            Help: "Recency cache writes to disk.",
        }),
        UDPDropped: f.NewGaugeFunc(prometheus.GaugeOpts{
            Namespace: "paradis", Subsystem: "udp", Name: "dropped_datagrams",
            Help: "Datagrams dropped because a socket input buffer was full.",
        }, dropped),
    }
}
