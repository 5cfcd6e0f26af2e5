package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/pensionportal/recovery"
	"github.com/pensionportal/recovery/accounts"
)

// codeBox keeps the last code delivered to each destination.
type codeBox struct {
	codes sync.Map
}

func (b *codeBox) Deliver(_ context.Context, d recovery.Delivery) error {
	b.codes.Store(d.Destination, d.Code)
	return nil
}

func (b *codeBox) code(destination string) string {
	v, _ := b.codes.Load(destination)
	s, _ := v.(string)
	return s
}

type step int

const (
	stepInitiate step = iota
	stepSendCode
	stepVerify
	stepReset
	stepCount
)

var stepNames = [stepCount]string{"initiate", "send-code", "verify-code", "reset"}

type collector struct {
	mu        sync.Mutex
	latencies [stepCount][]time.Duration
	failures  [stepCount]int64
}

func (c *collector) record(s step, d time.Duration, err error) {
	if err != nil {
		atomic.AddInt64(&c.failures[s], 1)
	}
	c.mu.Lock()
	c.latencies[s] = append(c.latencies[s], d)
	c.mu.Unlock()
}

func main() {
	var (
		flows       = pflag.Int("flows", 5000, "number of complete reset flows to run")
		concurrency = pflag.Int("concurrency", 64, "number of concurrent workers")
		backend     = pflag.String("backend", "redis", "store backend: memory or redis")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		bcryptCost  = pflag.Int("bcrypt-cost", 4, "bcrypt cost for the new password hashes")
	)
	pflag.Parse()

	if *flows <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "flows and concurrency must be > 0")
		os.Exit(2)
	}

	cfg := recovery.DefaultConfig()
	cfg.Reset.EnumerationDelay = false
	cfg.Password.BcryptCost = *bcryptCost
	cfg.Store.Backend = recovery.StoreBackend(*backend)
	cfg.Store.SweepInterval = 0

	builder := recovery.New()

	if cfg.Store.Backend == recovery.StoreRedis {
		client, cleanup, err := openRedis(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		builder.WithRedis(client)
	}

	subjects := make([]accounts.StaticSubject, *flows)
	for i := range subjects {
		subjects[i] = accounts.StaticSubject{
			ID:         fmt.Sprintf("p-%d", i),
			Identifier: identifierFor(i),
			Email:      fmt.Sprintf("p-%d@example.org", i),
		}
	}
	dir, err := accounts.NewStaticDirectory(subjects)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed directory: %v\n", err)
		os.Exit(1)
	}

	box := &codeBox{}
	engine, err := builder.
		WithConfig(cfg).
		WithDirectory(dir).
		WithNotifier(box).
		WithCredentialStore(dir).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("running %d flows with %d workers on %s backend...\n", *flows, *concurrency, cfg.Store.Backend)

	c := &collector{}
	var (
		wg     sync.WaitGroup
		cursor int64
	)
	start := time.Now()
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= *flows {
					return
				}
				runFlow(engine, box, c, i)
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)

	fmt.Println("---- results ----")
	fmt.Printf("flows=%d total=%s flows/sec=%.0f\n", *flows, total.Round(time.Millisecond), float64(*flows)/total.Seconds())
	for s := step(0); s < stepCount; s++ {
		printStats(stepNames[s], computeStats(c.latencies[s], c.failures[s]))
	}
}

func runFlow(engine *recovery.Engine, box *codeBox, c *collector, i int) {
	ctx := recovery.WithClientIP(context.Background(), fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xFF, (i>>8)&0xFF, i&0xFF))

	t0 := time.Now()
	res, err := engine.Initiate(ctx, identifierFor(i))
	c.record(stepInitiate, time.Since(t0), err)
	if err != nil || res.Token == "" {
		return
	}

	t0 = time.Now()
	_, err = engine.SendCode(ctx, res.Token, recovery.MethodEmail)
	c.record(stepSendCode, time.Since(t0), err)
	if err != nil {
		return
	}

	t0 = time.Now()
	err = engine.VerifyCode(ctx, res.Token, box.code(fmt.Sprintf("p-%d@example.org", i)))
	c.record(stepVerify, time.Since(t0), err)
	if err != nil {
		return
	}

	t0 = time.Now()
	err = engine.CompletePasswordReset(ctx, res.Token, fmt.Sprintf("Load-Test-%d!", i))
	c.record(stepReset, time.Since(t0), err)
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
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{mr.Addr()},
		})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

func identifierFor(i int) string {
	return fmt.Sprintf("NSS%08d", i)
}

type phaseStats struct {
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
}

func computeStats(samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
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
	fmt.Printf("%s: ops=%d failures=%d p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
