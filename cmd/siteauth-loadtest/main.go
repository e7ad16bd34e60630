// Command siteauth-loadtest drives an in-process engine and reports latency
// percentiles for the authorize and refresh paths.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aimbuild/siteauth"
	"github.com/aimbuild/siteauth/notify"
	"github.com/aimbuild/siteauth/storage/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type accountState struct {
	id      string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		accounts    = flag.Int("accounts", 500, "number of verified accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	client, cleanup, err := connectRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := siteauth.New().
		WithConfig(loadConfig()).
		WithRedis(client).
		WithAccountStore(memory.NewAccountStore()).
		WithCompanyDirectory(memory.NewCompanyDirectory()).
		WithNotifier(notify.NewLogNotifier(zap.NewNop(), false)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	states, err := seed(ctx, engine, *accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authorizeStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.Authorize(ctx, token, siteauth.RoleProjectSupervisor)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		pair, err := engine.Refresh(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access, s.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("authorize", authorizeStats)
	printStats("refresh", refreshStats)
}

func connectRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// loadConfig relaxes the throttles so that the seed phase is not rate
// limited and returns OTPs in the register response.
func loadConfig() siteauth.Config {
	cfg := siteauth.DefaultConfig()
	cfg.Tokens.Access.PrivateKey = []byte("loadtest-access-key-0123456789abcdef")
	cfg.Tokens.Refresh.PrivateKey = []byte("loadtest-refresh-key-0123456789abcdef")
	cfg.Tokens.VerifyEmail.PrivateKey = []byte("loadtest-verify-key-0123456789abcdef")
	cfg.Tokens.ResetPassword.PrivateKey = []byte("loadtest-reset-key-0123456789abcdef")
	cfg.Security.ProductionMode = false
	cfg.RateLimit.LoginPerIP = 0
	cfg.OTP.RequestLimit = 0
	return cfg
}

// seed registers supervisors, verifies them with the returned OTP and keeps
// the token pair minted by verification.
func seed(ctx context.Context, engine *siteauth.Engine, n int) ([]accountState, error) {
	states := make([]accountState, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("supervisor-%d@loadtest.local", i)
		reg, err := engine.Register(ctx, siteauth.RegisterInput{
			Email:               email,
			Password:            "LoadTest-Passw0rd",
			FirstName:           "Load",
			LastName:            fmt.Sprintf("Tester %d", i),
			Role:                siteauth.RoleProjectSupervisor,
			SupervisorManagerID: "loadtest-manager",
		})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", email, err)
		}
		verified, err := engine.VerifyEmail(ctx, email, reg.VerificationToken, reg.OTP)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", email, err)
		}
		states[i] = accountState{
			id:      verified.Account.ID,
			access:  verified.Tokens.AccessToken,
			refresh: verified.Tokens.RefreshToken,
		}
	}
	return states, nil
}

func runPhase(ops, concurrency int, seedSalt int64, op func(r *rand.Rand, i int) error) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedSalt))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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

func percentile(sorted []time.Duration, p int) time.Duration {
	switch {
	case len(sorted) == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[(len(sorted)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-10s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures, s.total.Round(time.Millisecond), s.opsPerS,
		s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond))
}
