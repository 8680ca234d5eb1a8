// Command bench runs a synthetic observer workload against the store and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	pmet "github.com/IvanBrykalov/swrcache/metrics/prom"
	"github.com/IvanBrykalov/swrcache/swr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ---- Flags ----
	var (
		shards    = flag.Int("shards", 0, "number of shards (0=auto)")
		staleTime = flag.Duration("stale", time.Second, "policy StaleTime")
		gcTime    = flag.Duration("gc", 5*time.Second, "policy GCTime (keep-alive)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		holdMax  = flag.Duration("hold", 2*time.Millisecond, "max time an observer stays attached")

		keys  = flag.Int("keys", 100_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		fetchLag = flag.Duration("fetch_lag", 100*time.Microsecond, "simulated backend latency")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "swr", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build store ----
	s := swr.New(swr.Options{
		Shards:  *shards,
		Metrics: metrics,
		DefaultPolicy: &swr.Policy{
			StaleTime: *staleTime,
			GCTime:    *gcTime,
		},
	})
	defer func() { _ = s.Close() }()

	// Simulated backend: every key resolves after a fixed lag.
	var fetched atomic.Uint64
	lag := *fetchLag
	fetch := func(ctx context.Context, _ swr.Receiver) (int, error) {
		fetched.Add(1)
		if lag > 0 {
			timer := time.NewTimer(lag)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		return int(fetched.Load()), nil
	}

	// ---- Snapshot flags for goroutines ----
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	holdMaxNs := int64(*holdMax)
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var attaches, observed, settled uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				def := swr.QueryDef[int]{
					Key:   swr.NewKey("bench", localZipf.Uint64()),
					Fetch: fetch,
				}
				h, err := swr.Attach(s, def)
				if err != nil {
					log.Fatalf("attach: %v", err)
				}
				atomic.AddUint64(&attaches, 1)

				// Hold the observer for a short random window, reading
				// state the way a render loop would.
				deadline := time.Now().Add(time.Duration(localR.Int63n(holdMaxNs + 1)))
				for time.Now().Before(deadline) {
					st := h.State()
					if st.HasData {
						atomic.AddUint64(&observed, 1)
					}
					if st.Status != swr.StatusIdle {
						atomic.AddUint64(&settled, 1)
						break
					}
					select {
					case <-h.Updates():
					case <-ctx.Done():
						h.Detach()
						return
					}
				}
				h.Detach()
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	st := s.Stats()
	att := atomic.LoadUint64(&attaches)
	hitRate := 0.0
	if st.Hits+st.Misses > 0 {
		hitRate = float64(st.Hits) / float64(st.Hits+st.Misses) * 100
	}

	fmt.Printf("shards=%d workers=%d keys=%d stale=%v gc=%v dur=%v seed=%d\n",
		*shards, workersN, *keys, *staleTime, *gcTime, elapsed, seedBase)
	fmt.Printf("attaches=%d (%.0f attach/s)  observed=%d  settled=%d  fetches=%d\n",
		att, float64(att)/elapsed.Seconds(), atomic.LoadUint64(&observed),
		atomic.LoadUint64(&settled), fetched.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%  entries=%d\n",
		st.Hits, st.Misses, hitRate, st.Entries)
}
