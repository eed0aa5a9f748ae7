package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when no config file is given", func() {
			It("should return defaults", func() {
				config, err := Load("")
				Expect(err).NotTo(HaveOccurred())

				Expect(config.Server.Host).To(Equal("127.0.0.1"))
				Expect(config.Server.Port).To(Equal(8000))
				Expect(config.Server.Workers).To(Equal(1))
				Expect(config.Logging.Dir).To(Equal("./logs"))
				Expect(config.Logging.Level).To(Equal("INFO"))
				Expect(config.Cache.TTL).To(Equal(24 * time.Hour))
				Expect(config.Cache.MaxEntries).To(Equal(3000))
				Expect(config.Redis.Host).To(Equal("localhost"))
				Expect(config.Redis.Port).To(Equal(6379))
				Expect(config.Trends.HourlyLimit).To(Equal(50))
				Expect(config.Queue.MaxConcurrent).To(Equal(20))
				Expect(config.Queue.BatchDelay).To(Equal(5 * time.Second))
			})
		})

		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  host: "0.0.0.0"
  port: 9000

logging:
  dir: "/var/log/adstrends"
  level: "DEBUG"

cache:
  ttl: 1h
  max_entries: 100

redis:
  host: "redis.internal"
  port: 6380
  db: 2

trends:
  hourly_limit: 10
  progress_file: "/tmp/progress.json"

queue:
  max_concurrent: 5
  batch_delay: 2s
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(config).NotTo(BeNil())

				Expect(config.Server.Host).To(Equal("0.0.0.0"))
				Expect(config.Server.Port).To(Equal(9000))
				Expect(config.Logging.Dir).To(Equal("/var/log/adstrends"))
				Expect(config.Logging.Level).To(Equal("DEBUG"))
				Expect(config.Cache.TTL).To(Equal(time.Hour))
				Expect(config.Cache.MaxEntries).To(Equal(100))
				Expect(config.Redis.Host).To(Equal("redis.internal"))
				Expect(config.Redis.Port).To(Equal(6380))
				Expect(config.Redis.DB).To(Equal(2))
				Expect(config.Trends.HourlyLimit).To(Equal(10))
				Expect(config.Queue.MaxConcurrent).To(Equal(5))
				Expect(config.Queue.BatchDelay).To(Equal(2 * time.Second))
			})
		})

		Context("when config file has invalid YAML", func() {
			It("should return an error", func() {
				err := os.WriteFile(configFile, []byte("server: ["), 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when the config file does not exist", func() {
			It("should fall back to defaults", func() {
				config, err := Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).NotTo(HaveOccurred())
				Expect(config.Server.Port).To(Equal(8000))
			})
		})

		Context("with environment overrides", func() {
			BeforeEach(func() {
				os.Setenv("CACHE_TTL", "3600")
				os.Setenv("CACHE_MAX_ENTRIES", "42")
				os.Setenv("REDIS_HOST", "env-redis")
				os.Setenv("API_PORT", "8080")
				os.Setenv("LOG_LEVEL", "WARN")
				os.Setenv("GOOGLE_ADS_CUSTOMER_ID", "123-456-7890")
			})

			AfterEach(func() {
				os.Unsetenv("CACHE_TTL")
				os.Unsetenv("CACHE_MAX_ENTRIES")
				os.Unsetenv("REDIS_HOST")
				os.Unsetenv("API_PORT")
				os.Unsetenv("LOG_LEVEL")
				os.Unsetenv("GOOGLE_ADS_CUSTOMER_ID")
			})

			It("should let the environment win over file values", func() {
				err := os.WriteFile(configFile, []byte("cache:\n  max_entries: 7\n"), 0644)
				Expect(err).NotTo(HaveOccurred())

				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.Cache.TTL).To(Equal(time.Hour))
				Expect(config.Cache.MaxEntries).To(Equal(42))
				Expect(config.Redis.Host).To(Equal("env-redis"))
				Expect(config.Server.Port).To(Equal(8080))
				Expect(config.Logging.Level).To(Equal("WARN"))
			})

			It("should strip dashes from the customer id", func() {
				config, err := Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(config.Ads.NormalizedCustomerID()).To(Equal("1234567890"))
			})
		})

		Context("validation", func() {
			It("should reject a non-positive cache TTL", func() {
				os.Setenv("CACHE_TTL", "-1")
				defer os.Unsetenv("CACHE_TTL")

				_, err := Load("")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("cache TTL"))
			})

			It("should reject an out-of-range port", func() {
				os.Setenv("API_PORT", "70000")
				defer os.Unsetenv("API_PORT")

				_, err := Load("")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("server port"))
			})
		})
	})

	Describe("AdsConfig", func() {
		It("should report missing credentials", func() {
			ads := AdsConfig{DeveloperToken: "tok"}
			Expect(ads.HasCredentials()).To(BeFalse())
		})

		It("should report complete credentials", func() {
			ads := AdsConfig{
				DeveloperToken: "tok",
				ClientID:       "id",
				ClientSecret:   "secret",
				RefreshToken:   "refresh",
				CustomerID:     "123",
			}
			Expect(ads.HasCredentials()).To(BeTrue())
		})
	})

	Describe("RedisConfig", func() {
		It("should format the address", func() {
			r := RedisConfig{Host: "localhost", Port: 6379}
			Expect(r.Addr()).To(Equal("localhost:6379"))
		})
	})
})
