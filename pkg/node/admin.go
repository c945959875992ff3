package node

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "time"

    "github.com/gorilla/mux"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"

    "paradis/pkg/ident"
)

// LinkInfo describes one hub connection in the admin API.
type LinkInfo struct {
    ID     uint64   `json:"id"`
    Kind   string   `json:"kind"`
    Remote string   `json:"remote"`
    Peer   string   `json:"peer,omitempty"`
    Bound  bool     `json:"bound"`
    Since  int64    `json:"since_unix_ms"`
}

// PeersInfo is the /peers response.
type PeersInfo struct {
    ID     ident.ID   `json:"id"`
    Addr   string     `json:"addr"`
    Recent []string   `json:"recent"`
    Links  []LinkInfo `json:"links"`
    Groups []ident.ID `json:"groups"`
}

// Handler returns the admin HTTP API: /metrics, /peers and
// /groups/{id}/members.
func (n *Node) Handler() http.Handler {
    r := mux.NewRouter()
    r.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
    r.HandleFunc("/peers", n.handlePeers).Methods(http.MethodGet)
    r.HandleFunc("/groups/{id}/members", n.handleMembers).Methods(http.MethodGet)
    return r
}

func (n *Node) peersInfo() PeersInfo {
    info := PeersInfo{
        ID:     n.local,
        Addr:   n.udp.Addr().String(),
        Recent: n.recent.Snapshot(),
        Links:  []LinkInfo{},
        Groups: n.hub.Groups(),
    }
    for _, l := range n.hub.Links() {
        li := LinkInfo{
            ID:     l.ID,
            Kind:   l.Conn.Kind().String(),
            Remote: l.Conn.RemoteAddr().String(),
            Bound:  l.Bound,
            Since:  l.Since.UnixMilli(),
        }
        if l.Bound { li.Peer = l.Peer.String() }
        info.Links = append(info.Links, li)
    }
    return info
}

func (n *Node) handlePeers(w http.ResponseWriter, _ *http.Request) {
    writeJSON(w, http.StatusOK, n.peersInfo())
}

func (n *Node) handleMembers(w http.ResponseWriter, r *http.Request) {
    group, err := ident.Parse(mux.Vars(r)["id"])
    if err != nil {
        writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
        return
    }
    writeJSON(w, http.StatusOK, n.Members(group))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    if err := json.NewEncoder(w).Encode(v); err != nil {
        zap.L().Debug("admin response write failed", zap.Error(err))
    }
}

// serveAdmin runs the admin API on addr until ctx ends.
func (n *Node) serveAdmin(ctx context.Context, addr string) error {
    srv := &http.Server{Addr: addr, Handler: n.Handler(), ReadHeaderTimeout: 5 * time.Second}
    errc := make(chan error, 1)
    go func() { errc <- srv.ListenAndServe() }()
    zap.L().Info("admin http listening", zap.String("addr", addr))
    select {
    case err := <-errc:
        if errors.Is(err, http.ErrServerClosed) { return nil }
        return err
    case <-ctx.Done():
    }
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    return srv.Shutdown(shutdownCtx)
}
