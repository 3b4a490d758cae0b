package handlers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/showwin/speedtest-go/speedtest"

	"taskd/internal/scheduler"
	logx "taskd/pkg/logx"
)

// latencyProbe pings the nearest speedtest server and logs the round-trip
// time. It deliberately skips the bandwidth phases, so a periodic probe stays
// cheap. Task data keys:
//
//	"server_count": how many nearest candidates to consider (default 3)
func latencyProbe(log logx.Logger) scheduler.HandlerFunc {
	return func(ctx context.Context, inv scheduler.Invocation) error {
		candidates := 3
		if v, ok := inv.Data["server_count"]; ok {
			if n, ok := asInt(v); ok && n > 0 {
				candidates = n
			}
		}

		// Fresh client per run: the package-level speedtest helpers keep a
		// shared DataManager that retains buffers across runs.
		st := speedtest.New()

		servers, err := st.FetchServerListContext(ctx)
		if err != nil {
			return fmt.Errorf("fetch server list: %w", err)
		}
		if a := servers.Available(); a != nil {
			servers = *a
		}
		if len(servers) == 0 {
			return fmt.Errorf("no speedtest servers available")
		}

		sort.Slice(servers, func(i, j int) bool {
			return servers[i].Distance < servers[j].Distance
		})
		if candidates > len(servers) {
			candidates = len(servers)
		}

		var (
			best    *speedtest.Server
			bestLat time.Duration
			lastErr error
		)
		for _, srv := range servers[:candidates] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := srv.PingTestContext(ctx, nil); err != nil {
				lastErr = err
				continue
			}
			if best == nil || srv.Latency < bestLat {
				best = srv
				bestLat = srv.Latency
			}
		}
		if best == nil {
			return fmt.Errorf("all latency probes failed: %w", lastErr)
		}

		log.Info("latency probe",
			logx.String("task", inv.TaskID),
			logx.String("server", best.Sponsor),
			logx.String("country", best.Country),
			logx.Float64("distance_km", best.Distance),
			logx.Duration("latency", bestLat),
		)
		return nil
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
