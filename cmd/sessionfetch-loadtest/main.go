package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/sessionfetch"
	"github.com/MrEthical07/sessionfetch/internal/audit"
	"github.com/MrEthical07/sessionfetch/membership"
	"github.com/MrEthical07/sessionfetch/server"
	"github.com/MrEthical07/sessionfetch/session"
	"github.com/MrEthical07/sessionfetch/token"
)

const (
	anonKey    = "loadtest-anon"
	backendURL = "https://loadtest.invalid"
)

type sessionState struct {
	userID string
	client *sessionfetch.Client
	holder *session.Holder
}

func main() {
	var (
		sessions    = flag.Int("sessions", 50, "number of sessions to seed")
		callers     = flag.Int("callers", 8, "concurrent ResolveAccessToken callers per session in the heal phase")
		concurrency = flag.Int("concurrency", 64, "workers in the fast path phase")
		ops         = flag.Int("ops", 20000, "operations in the fast path phase")
		workspaces  = flag.Int("workspaces", 300, "memberships per user; enough makes full tokens oversized")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *callers <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, callers, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	rdb, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	members := membership.NewStatic()
	issuer, err := token.NewIssuer(token.IssuerConfig{
		AccessTTL:     15 * time.Minute,
		SigningMethod: token.MethodHS256,
		PrivateKey:    []byte(strings.Repeat("k", 32)),
		Issuer:        "sessionfetch-loadtest",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg := server.DefaultConfig()
	cfg.AnonKey = anonKey
	cfg.BackendURL = backendURL
	cfg.RedisPrefix = "lt"
	cfg.RepairMax = 0
	cfg.RefreshMax = 0
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := server.NewService(cfg, rdb, issuer, members, server.WithLogger(quiet), server.WithAuditSink(audit.NoOpSink{}))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer svc.Close()

	ts := httptest.NewServer(server.NewHandler(svc, nil))
	defer ts.Close()

	fmt.Printf("seeding %d sessions with %d workspaces each...\n", *sessions, *workspaces)
	states := make([]sessionState, *sessions)
	for i := range states {
		userID := fmt.Sprintf("user-%d", i)
		if err := members.Generate(userID, *workspaces); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		pair, err := svc.IssueSession(ctx, userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		holder := session.NewHolder(&session.Session{
			UserID:       userID,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		}, &session.TokenEndpoint{BaseURL: ts.URL, AnonKey: anonKey, HTTPClient: ts.Client()})

		clientCfg := sessionfetch.DefaultConfig()
		clientCfg.Repair.Endpoint = ts.URL + session.RepairPath
		clientCfg.Repair.BackendURL = backendURL
		clientCfg.Repair.AnonKey = anonKey
		clientCfg.Metrics.EnableLatencyHistograms = true

		client, err := sessionfetch.New().
			WithConfig(clientCfg).
			WithSessionSource(holder).
			WithHTTPClient(ts.Client()).
			WithLogger(quiet).
			Build()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		states[i] = sessionState{userID: userID, client: client, holder: holder}
	}

	heal := runHealPhase(ctx, states, *callers)
	fast := runFastPhase(ctx, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printHeal(heal, len(states), *callers)
	printStats("fast path", fast)
}

type healStats struct {
	stats     phaseStats
	healed    int64
	failed    map[string]int64
	refreshes uint64
	repairs   uint64
}

// runHealPhase starts callers concurrent resolutions per oversized session.
// The client does not coalesce them, so every caller drives its own refresh
// and repair and the refresh-token rotation decides who wins.
func runHealPhase(ctx context.Context, states []sessionState, callers int) healStats {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		healed    int64
		failures  int64
		failed    = make(map[string]int64)
		latencies = make([]time.Duration, 0, len(states)*callers)
	)

	start := time.Now()
	for i := range states {
		for c := 0; c < callers; c++ {
			wg.Add(1)
			go func(st *sessionState) {
				defer wg.Done()
				t0 := time.Now()
				_, err := st.client.ResolveAccessToken(ctx, false)
				d := time.Since(t0)

				mu.Lock()
				defer mu.Unlock()
				latencies = append(latencies, d)
				if err == nil {
					healed++
					return
				}
				failures++
				var re *sessionfetch.ResolveError
				if errors.As(err, &re) {
					failed[re.Kind.Error()]++
				} else {
					failed[err.Error()]++
				}
			}(&states[i])
		}
	}
	wg.Wait()

	out := healStats{
		stats:  computeStats(time.Since(start), latencies, failures),
		healed: healed,
		failed: failed,
	}
	for i := range states {
		snap := states[i].client.MetricsSnapshot()
		out.refreshes += snap.Counters[sessionfetch.MetricRefreshSuccess] + snap.Counters[sessionfetch.MetricRefreshFailure]
		out.repairs += snap.Counters[sessionfetch.MetricRepairSuccess] + snap.Counters[sessionfetch.MetricRepairFailure]
	}
	return out
}

func runFastPhase(ctx context.Context, states []sessionState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				st := &states[i%len(states)]
				t0 := time.Now()
				_, err := st.client.ResolveAccessToken(ctx, false)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func printHeal(h healStats, sessions, callers int) {
	printStats("heal", h.stats)
	fmt.Printf("heal: healed=%d refresh_calls=%d repair_calls=%d (%.2f refreshes per session, callers=%d)\n",
		h.healed, h.refreshes, h.repairs, float64(h.refreshes)/float64(sessions), callers)
	kinds := make([]string, 0, len(h.failed))
	for k := range h.failed {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("heal: failed[%s]=%d\n", k, h.failed[k])
	}
}
