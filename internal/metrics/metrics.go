package metrics

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/doridoridoriand/ipwatch/internal/config"
	"github.com/doridoridoriand/ipwatch/internal/monitor"
	"github.com/doridoridoriand/ipwatch/internal/scheduler"
)

// StatusSource provides the view metrics are rendered from.
type StatusSource interface {
	Status() monitor.StatusView
}

// CycleSource reports poll loop counters.
type CycleSource interface {
	Stats() scheduler.CycleStats
}

// Server exposes Prometheus-style metrics based on current state.
type Server struct {
	mode   config.MetricsMode
	status StatusSource
	cycles CycleSource
}

// NewServer constructs a metrics server. cycles may be nil.
func NewServer(mode config.MetricsMode, status StatusSource, cycles CycleSource) *Server {
	return &Server{mode: mode, status: status, cycles: cycles}
}

// Handler returns an http handler that serves metrics.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		bw := bufio.NewWriter(w)
		defer bw.Flush()
		s.writeMetrics(bw)
	})
}

func (s *Server) writeMetrics(w *bufio.Writer) {
	if s.mode == "" {
		return
	}
	view := s.status.Status()

	if s.mode == config.MetricsModeAggregated || s.mode == config.MetricsModeBoth {
		writeAggregated(w, view)
		if s.cycles != nil {
			writeCycles(w, s.cycles.Stats())
		}
	}
	if s.mode == config.MetricsModePerTarget || s.mode == config.MetricsModeBoth {
		writePerTarget(w, view)
	}
}

func writeAggregated(w *bufio.Writer, view monitor.StatusView) {
	counts := view.Counts()
	writeGauge(w, "ipwatch_targets_total", "Registered targets.", counts.Total)
	writeGauge(w, "ipwatch_targets_online", "Targets whose last probe succeeded.", counts.Online)
	writeGauge(w, "ipwatch_targets_offline", "Targets whose last probe failed.", counts.Offline)
	writeGauge(w, "ipwatch_targets_pending", "Targets not probed yet.", counts.Pending)
}

func writeCycles(w *bufio.Writer, stats scheduler.CycleStats) {
	fmt.Fprintln(w, "# HELP ipwatch_poll_cycles_total Completed poll cycles.")
	fmt.Fprintln(w, "# TYPE ipwatch_poll_cycles_total counter")
	fmt.Fprintf(w, "ipwatch_poll_cycles_total %d\n", stats.Cycles)
	fmt.Fprintln(w, "# HELP ipwatch_poll_cycle_duration_seconds Duration of the last poll cycle.")
	fmt.Fprintln(w, "# TYPE ipwatch_poll_cycle_duration_seconds gauge")
	fmt.Fprintf(w, "ipwatch_poll_cycle_duration_seconds %.3f\n", stats.LastDuration.Seconds())
}

func writePerTarget(w *bufio.Writer, view monitor.StatusView) {
	addresses := view.Addresses()
	if len(addresses) == 0 {
		return
	}
	fmt.Fprintln(w, "# HELP ipwatch_target_up Whether the last probe succeeded.")
	fmt.Fprintln(w, "# TYPE ipwatch_target_up gauge")
	for _, address := range addresses {
		rec, ok := view.Status[address]
		if !ok {
			continue
		}
		up := 0
		if rec.Online {
			up = 1
		}
		fmt.Fprintf(w, "ipwatch_target_up{%s} %d\n", labels(address, view.Names[address]), up)
	}

	fmt.Fprintln(w, "# HELP ipwatch_target_rtt_ms Round-trip time of the last successful probe.")
	fmt.Fprintln(w, "# TYPE ipwatch_target_rtt_ms gauge")
	for _, address := range addresses {
		rec, ok := view.Status[address]
		if !ok || !rec.Online || rec.ResponseTime <= 0 {
			continue
		}
		fmt.Fprintf(w, "ipwatch_target_rtt_ms{%s} %s\n", labels(address, view.Names[address]), rec.ResponseTimeLabel())
	}

	fmt.Fprintln(w, "# HELP ipwatch_target_last_online_timestamp_seconds When an offline target was last seen online.")
	fmt.Fprintln(w, "# TYPE ipwatch_target_last_online_timestamp_seconds gauge")
	for _, address := range addresses {
		rec, ok := view.Status[address]
		if !ok || !rec.HasLastOnline() {
			continue
		}
		fmt.Fprintf(w, "ipwatch_target_last_online_timestamp_seconds{%s} %d\n", labels(address, view.Names[address]), rec.LastOnlineAt.Unix())
	}
}

func writeGauge(w *bufio.Writer, name, help string, value int) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

func labels(address, name string) string {
	return fmt.Sprintf(`address="%s",name="%s"`, escapeLabel(address), escapeLabel(name))
}

func escapeLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "\\n")
	return value
}

// Serve starts an HTTP server for handler on addr and blocks until context
// cancellation.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		return err
	}
}
