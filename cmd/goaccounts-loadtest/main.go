// Command goaccounts-loadtest resolves sessions for many users concurrently
// in strict mode and checks that no request observes another user's
// identity.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goAccounts "github.com/MrEthical07/goAccounts"
	"github.com/MrEthical07/goAccounts/graph"
	"github.com/MrEthical07/goAccounts/internal/app"
	"github.com/MrEthical07/goAccounts/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
)

var viewerQuery = graph.Request{Query: `{ getUser { id } }`}

type seeded struct {
	userID string
	token  string
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed, one session each")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (resolve + graphql)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "acs-load", "session key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	seed := make([]goAccounts.User, *users)
	for i := range seed {
		seed[i] = goAccounts.User{
			ID:       fmt.Sprintf("u-%d", i),
			Email:    fmt.Sprintf("user%d@load.test", i),
			Username: fmt.Sprintf("user%d", i),
			IsAdmin:  i%10 == 0,
		}
	}
	store, err := memory.New(seed...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed users: %v\n", err)
		os.Exit(1)
	}

	cfg := goAccounts.DefaultConfig()
	cfg.Token.Secret = []byte("goaccounts-loadtest-secret-0123456789")
	cfg.Session.RedisPrefix = *prefix
	cfg.ValidationMode = goAccounts.ModeStrict
	engine, err := goAccounts.New().WithConfig(cfg).WithUserStore(store).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	schema, err := app.Schema(engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compose schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("issuing %d sessions...\n", *users)
	startSeed := time.Now()
	states := make([]seeded, *users)
	for i := range seed {
		res, err := engine.IssueToken(ctx, &seed[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		states[i] = seeded{userID: seed[i].ID, token: res.Token}
	}
	fmt.Printf("issued in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resolveStats := runPhase(states, *ops, *concurrency, 7919, func(s seeded) (bool, error) {
		sess, err := engine.Resolve(ctx, s.token)
		if err != nil {
			return false, err
		}
		return sess.UserID() == s.userID, nil
	})

	graphqlStats := runPhase(states, *ops, *concurrency, 6151, func(s seeded) (bool, error) {
		sess, err := engine.Resolve(ctx, s.token)
		if err != nil {
			return false, err
		}
		resp := schema.Execute(goAccounts.WithSession(ctx, sess), viewerQuery)
		if len(resp.Errors) > 0 {
			return false, resp.Errors
		}
		var out struct {
			GetUser struct {
				ID string `json:"id"`
			} `json:"getUser"`
		}
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			return false, err
		}
		return out.GetUser.ID == s.userID, nil
	})

	fmt.Println("---- results ----")
	printStats("resolve", resolveStats)
	printStats("graphql", graphqlStats)

	if resolveStats.crossovers > 0 || graphqlStats.crossovers > 0 {
		fmt.Fprintln(os.Stderr, "identity crossover detected")
		os.Exit(1)
	}
}

type phaseStats struct {
	total      time.Duration
	ops        int
	failures   int64
	crossovers int64
	p50        time.Duration
	p95        time.Duration
	p99        time.Duration
	opsPerS    float64
}

// runPhase calls op for random seeded sessions until ops calls were made.
// op reports whether the identity it observed matched the session.
func runPhase(states []seeded, ops, concurrency int, salt int64, op func(seeded) (bool, error)) phaseStats {
	var (
		wg         sync.WaitGroup
		cursor     int64
		failures   int64
		crossovers int64
		latencies  = make([]time.Duration, 0, ops)
		mu         sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*salt))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					break
				}
				state := states[r.Intn(len(states))]
				t0 := time.Now()
				match, err := op(state)
				local = append(local, time.Since(t0))
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case !match:
					atomic.AddInt64(&crossovers, 1)
				}
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	stats := computeStats(time.Since(start), latencies)
	stats.failures = failures
	stats.crossovers = crossovers
	return stats
}

func computeStats(total time.Duration, samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
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
	fmt.Printf("%s: ops=%d failures=%d crossovers=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.crossovers,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
