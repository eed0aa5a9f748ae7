package breaker

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
)

var _ = Describe("Breaker", func() {
	var (
		clock time.Time
		b     *Breaker
	)

	BeforeEach(func() {
		clock = time.Unix(1700000000, 0)
		b = New("ads", 5, 300*time.Second).WithClock(func() time.Time { return clock })
	})

	Context("while closed", func() {
		It("should admit calls below the threshold", func() {
			for i := 0; i < 4; i++ {
				b.Failure()
			}
			Expect(b.Allow()).To(Succeed())
		})

		It("should reset the counter on success", func() {
			for i := 0; i < 4; i++ {
				b.Failure()
			}
			b.Success()
			b.Failure()
			Expect(b.Allow()).To(Succeed())
			Expect(b.Snapshot().ConsecutiveFailures).To(Equal(1))
		})
	})

	Context("when the threshold is reached", func() {
		BeforeEach(func() {
			for i := 0; i < 5; i++ {
				b.Failure()
			}
		})

		It("should fail fast with a breaker_open error", func() {
			err := b.Allow()
			Expect(err).To(HaveOccurred())
			Expect(apperrors.IsBreakerOpen(err)).To(BeTrue())
		})

		It("should keep failing fast within the cooldown", func() {
			Expect(b.Allow()).NotTo(Succeed())
			clock = clock.Add(299 * time.Second)
			Expect(b.Allow()).NotTo(Succeed())
		})

		It("should reset and admit the next call after the cooldown", func() {
			Expect(b.Allow()).NotTo(Succeed())
			clock = clock.Add(301 * time.Second)
			Expect(b.Allow()).To(Succeed())
			Expect(b.Snapshot().ConsecutiveFailures).To(BeZero())
		})

		It("should report open state in the snapshot", func() {
			Expect(b.Allow()).NotTo(Succeed())
			snap := b.Snapshot()
			Expect(snap.Open).To(BeTrue())
			Expect(snap.RemainingCooldown).To(BeNumerically(">", 0))
		})
	})

	Context("force open", func() {
		It("should trip immediately", func() {
			b.ForceOpen()
			err := b.Allow()
			Expect(apperrors.IsBreakerOpen(err)).To(BeTrue())
		})

		It("should recover after the cooldown like a normal trip", func() {
			b.ForceOpen()
			clock = clock.Add(301 * time.Second)
			Expect(b.Allow()).To(Succeed())
		})
	})

	Context("with a short cooldown", func() {
		It("should admit the call immediately after expiry", func() {
			short := New("trends", 3, 100*time.Millisecond).WithClock(func() time.Time { return clock })
			for i := 0; i < 3; i++ {
				short.Failure()
			}
			Expect(short.Allow()).NotTo(Succeed())
			clock = clock.Add(200 * time.Millisecond)
			Expect(short.Allow()).To(Succeed())
		})
	})
})
