package trends

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/lwoyr/AdsTrendsAPI/internal/config"
	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
)

// scriptedAPI returns canned responses per keyword, in call order.
type scriptedAPI struct {
	mu        sync.Mutex
	calls     []string
	responses map[string][]func() (float64, error)
	fallback  func(kw string) (float64, error)
}

func newScriptedAPI() *scriptedAPI {
	return &scriptedAPI{
		responses: make(map[string][]func() (float64, error)),
		fallback: func(string) (float64, error) {
			return 50.0, nil
		},
	}
}

func (s *scriptedAPI) on(kw string, responses ...func() (float64, error)) {
	s.responses[kw] = responses
}

func (s *scriptedAPI) FetchScore(_ context.Context, kw string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, kw)

	queue := s.responses[kw]
	if len(queue) == 0 {
		return s.fallback(kw)
	}
	response := queue[0]
	if len(queue) > 1 {
		s.responses[kw] = queue[1:]
	}
	return response()
}

func (s *scriptedAPI) callCount(kw string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == kw {
			n++
		}
	}
	return n
}

func (s *scriptedAPI) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func score(v float64) func() (float64, error) {
	return func() (float64, error) { return v, nil }
}

func quotaErr() func() (float64, error) {
	return func() (float64, error) {
		return 0, apperrors.New(apperrors.ErrorTypeUpstreamQuota, "429 too many requests")
	}
}

func transientErr() func() (float64, error) {
	return func() (float64, error) {
		return 0, apperrors.New(apperrors.ErrorTypeUpstreamTransient, "502")
	}
}

var _ = Describe("Trends Adapter", func() {
	var (
		ctx     context.Context
		api     *scriptedAPI
		adapter *Adapter
		slept   []time.Duration
		sleptMu sync.Mutex
	)

	recordingSleep := func(_ context.Context, d time.Duration) error {
		sleptMu.Lock()
		defer sleptMu.Unlock()
		slept = append(slept, d)
		return nil
	}

	newAdapter := func(cfg config.TrendsConfig) *Adapter {
		return NewWithAPI(api, cfg, zap.NewNop(), nil).
			WithSleep(recordingSleep).
			WithRandom(func() float64 { return 0.5 }) // jitter factor becomes exactly 1.0
	}

	BeforeEach(func() {
		ctx = context.Background()
		api = newScriptedAPI()
		slept = nil
		adapter = newAdapter(config.TrendsConfig{
			HourlyLimit:  50,
			ProgressFile: filepath.Join(GinkgoT().TempDir(), "progress.json"),
		})
	})

	Describe("result shape", func() {
		It("should cover exactly the requested keyword set", func() {
			api.on("b", transientErr())

			result := adapter.GetBulkTrends(ctx, []string{"a", "b", "c"})
			Expect(result).To(HaveLen(3))
			Expect(result["a"]).To(HaveValue(Equal(50.0)))
			Expect(result["b"]).To(BeNil())
			Expect(result["c"]).To(HaveValue(Equal(50.0)))
		})

		It("should report an empty-series score of zero, not absent", func() {
			api.on("quiet", score(0))

			result := adapter.GetBulkTrends(ctx, []string{"quiet"})
			Expect(result["quiet"]).To(HaveValue(Equal(0.0)))
		})
	})

	Describe("failure handling", func() {
		It("should not retry non-quota failures", func() {
			api.on("bad", transientErr())

			adapter.GetBulkTrends(ctx, []string{"bad"})
			Expect(api.callCount("bad")).To(Equal(1))
		})

		It("should retry quota failures on the fixed schedule and recover", func() {
			api.on("flaky", quotaErr(), quotaErr(), score(33.0))

			result := adapter.GetBulkTrends(ctx, []string{"flaky"})
			Expect(result["flaky"]).To(HaveValue(Equal(33.0)))
			Expect(api.callCount("flaky")).To(Equal(3))

			sleptMu.Lock()
			defer sleptMu.Unlock()
			Expect(slept).To(ContainElement(30 * time.Second))
			Expect(slept).To(ContainElement(60 * time.Second))
		})
	})

	Describe("quota exhaustion", func() {
		It("should abort the run, mark the rest failed, and open the breaker", func() {
			api.on("poison", quotaErr())
			// poison never recovers; retries exhaust.

			result := adapter.GetBulkTrends(ctx, []string{"ok1", "poison", "tail1", "tail2"})

			Expect(result).To(HaveLen(4))
			Expect(result["ok1"]).To(HaveValue(Equal(50.0)))
			Expect(result["poison"]).To(BeNil())
			Expect(result["tail1"]).To(BeNil())
			Expect(result["tail2"]).To(BeNil())

			Expect(api.callCount("poison")).To(Equal(1 + maxQuotaRetries))
			Expect(api.callCount("tail1")).To(BeZero())
			Expect(adapter.Breaker().Snapshot().Open).To(BeTrue())
		})

		It("should persist a progress snapshot on abort", func() {
			api.on("poison", quotaErr())

			adapter.GetBulkTrends(ctx, []string{"done", "poison", "later1", "later2"})

			snapshot, ok := adapter.Progress().Load()
			Expect(ok).To(BeTrue())
			Expect(snapshot.Completed).To(HaveKey("done"))
			Expect(snapshot.Failed).To(ContainElements("poison", "later1", "later2"))
		})
	})

	Describe("progress resume", func() {
		It("should seed completed scores and skip their upstream calls", func() {
			seeded := 42.5
			adapter.Progress().Save(map[string]*float64{"cached": &seeded}, []string{"fresh"}, nil)

			result := adapter.GetBulkTrends(ctx, []string{"cached", "fresh"})

			Expect(result).To(HaveLen(2))
			Expect(result["cached"]).To(HaveValue(Equal(42.5)))
			Expect(result["fresh"]).To(HaveValue(Equal(50.0)))
			Expect(api.callCount("cached")).To(BeZero())
		})

		It("should not leak snapshot keys that were not requested", func() {
			other := 10.0
			adapter.Progress().Save(map[string]*float64{"other": &other}, nil, nil)

			result := adapter.GetBulkTrends(ctx, []string{"mine"})
			Expect(result).To(HaveLen(1))
			Expect(result).To(HaveKey("mine"))
		})

		It("should delete the snapshot after a fully successful run", func() {
			adapter.GetBulkTrends(ctx, []string{"a", "b"})

			_, ok := adapter.Progress().Load()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("hourly cap", func() {
		It("should stop calling the upstream once the limit is reached", func() {
			clock := time.Unix(1700000000, 0)
			limited := NewWithAPI(api, config.TrendsConfig{
				HourlyLimit:  2,
				ProgressFile: filepath.Join(GinkgoT().TempDir(), "progress.json"),
			}, zap.NewNop(), nil).
				WithSleep(recordingSleep).
				WithRandom(func() float64 { return 0.5 }).
				WithClock(func() time.Time { return clock })

			result := limited.GetBulkTrends(ctx, []string{"a", "b", "c", "d"})

			Expect(api.totalCalls()).To(Equal(2))
			Expect(result["a"]).NotTo(BeNil())
			Expect(result["b"]).NotTo(BeNil())
			Expect(result["c"]).To(BeNil())
			Expect(result["d"]).To(BeNil())
		})

		It("should admit calls again after the window rolls over", func() {
			clock := time.Unix(1700000000, 0)
			limited := NewWithAPI(api, config.TrendsConfig{
				HourlyLimit:  1,
				ProgressFile: filepath.Join(GinkgoT().TempDir(), "progress.json"),
			}, zap.NewNop(), nil).
				WithSleep(recordingSleep).
				WithRandom(func() float64 { return 0.5 }).
				WithClock(func() time.Time { return clock })

			limited.GetBulkTrends(ctx, []string{"a"})
			Expect(api.totalCalls()).To(Equal(1))

			clock = clock.Add(61 * time.Minute)
			limited.GetBulkTrends(ctx, []string{"b"})
			Expect(api.totalCalls()).To(Equal(2))
		})
	})

	Describe("batching", func() {
		It("should sleep between batches with a growing delay", func() {
			keywords := []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7"}

			adapter.GetBulkTrends(ctx, keywords)

			sleptMu.Lock()
			defer sleptMu.Unlock()
			Expect(slept).To(ContainElement(12 * time.Second)) // entering batch 1
			Expect(slept).To(ContainElement(14 * time.Second)) // entering batch 2
		})

		It("should apply the adaptive pre-call delay", func() {
			adapter.GetBulkTrends(ctx, []string{"solo"})

			sleptMu.Lock()
			defer sleptMu.Unlock()
			Expect(slept).To(ContainElement(initialDelay))
		})
	})

	Describe("adaptive rate limiting", func() {
		It("should speed up after a sustained success streak", func() {
			for i := 0; i < successStreakLen+1; i++ {
				adapter.adjustOnSuccess()
			}
			adapter.mu.Lock()
			defer adapter.mu.Unlock()
			Expect(adapter.rateLimitDelay).To(BeNumerically("<", initialDelay))
			Expect(adapter.rateLimitDelay).To(BeNumerically(">=", minDelay))
		})

		It("should back off on failure up to the ceiling", func() {
			for i := 0; i < 30; i++ {
				adapter.adjustOnFailure(false)
			}
			adapter.mu.Lock()
			defer adapter.mu.Unlock()
			Expect(adapter.rateLimitDelay).To(Equal(maxDelay))
		})

		It("should back off harder on quota and reset the streak", func() {
			adapter.adjustOnSuccess()
			adapter.adjustOnFailure(true)

			adapter.mu.Lock()
			defer adapter.mu.Unlock()
			Expect(adapter.rateLimitDelay).To(Equal(10 * time.Second))
			Expect(adapter.successStreak).To(BeZero())
		})

		It("should never exceed the quota ceiling", func() {
			for i := 0; i < 10; i++ {
				adapter.adjustOnFailure(true)
			}
			adapter.mu.Lock()
			defer adapter.mu.Unlock()
			Expect(adapter.rateLimitDelay).To(Equal(maxQuotaDelay))
		})
	})

	Describe("circuit breaker", func() {
		It("should count consecutive non-quota failures and open at the threshold", func() {
			api.on("f1", transientErr())
			api.on("f2", transientErr())
			api.on("f3", transientErr())

			adapter.GetBulkTrends(ctx, []string{"f1", "f2", "f3"})
			Expect(adapter.Breaker().Snapshot().Open).To(BeTrue())
		})

		It("should fail keywords fast while open without aborting the run", func() {
			adapter.Breaker().ForceOpen()

			result := adapter.GetBulkTrends(ctx, []string{"a", "b"})
			Expect(api.totalCalls()).To(BeZero())
			Expect(result["a"]).To(BeNil())
			Expect(result["b"]).To(BeNil())
		})
	})
})
