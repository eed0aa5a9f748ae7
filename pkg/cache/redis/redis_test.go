package redis

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ = Describe("Redis Cache", func() {
	var (
		ctx         context.Context
		redisServer *miniredis.Miniredis
		redisClient *goredis.Client
		cache       *Cache
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		redisServer, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		redisClient = goredis.NewClient(&goredis.Options{Addr: redisServer.Addr()})
		cache = New(redisClient, zap.NewNop())
	})

	AfterEach(func() {
		_ = redisClient.Close()
		redisServer.Close()
	})

	It("should round-trip values", func() {
		Expect(cache.Set(ctx, "k", []byte("v"), time.Hour)).To(Succeed())

		data, err := cache.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("v")))
	})

	It("should return a miss for an absent key", func() {
		data, err := cache.Get(ctx, "missing")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(BeNil())
	})

	It("should expire values after the TTL", func() {
		Expect(cache.Set(ctx, "k", []byte("v"), time.Hour)).To(Succeed())

		redisServer.FastForward(2 * time.Hour)

		data, err := cache.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(BeNil())
	})

	It("should report existence", func() {
		Expect(cache.Set(ctx, "k", []byte("v"), time.Hour)).To(Succeed())

		ok, err := cache.Exists(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = cache.Exists(ctx, "other")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should delete keys and report the outcome", func() {
		Expect(cache.Set(ctx, "k", []byte("v"), time.Hour)).To(Succeed())

		ok, err := cache.Delete(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = cache.Delete(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should surface connection errors", func() {
		redisServer.Close()

		_, err := cache.Get(ctx, "k")
		Expect(err).To(HaveOccurred())

		Expect(cache.Set(ctx, "k", []byte("v"), time.Hour)).NotTo(Succeed())
		Expect(cache.Ping(ctx)).NotTo(Succeed())
	})
})
