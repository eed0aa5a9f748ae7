// Package http provides tuned HTTP client construction for upstream
// calls.
package http

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientConfig controls transport tuning for an upstream client.
type ClientConfig struct {
	Timeout                time.Duration
	MaxRetries             int
	DisableSSLVerification bool
	MaxIdleConns           int
	IdleConnTimeout        time.Duration
	TLSHandshakeTimeout    time.Duration
	ResponseHeaderTimeout  time.Duration
}

// DefaultClientConfig returns the baseline configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// AdsClientConfig tunes a client for the ad-platform API: one large
// batched request per call, generous header timeout.
func AdsClientConfig() ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = 60 * time.Second
	config.ResponseHeaderTimeout = 30 * time.Second
	return config
}

// TrendsClientConfig tunes a client for the trends API: small
// per-keyword requests, short overall timeout.
func TrendsClientConfig() ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = 30 * time.Second
	config.ResponseHeaderTimeout = 10 * time.Second
	config.MaxRetries = 0
	return config
}

// NewClient builds an *http.Client from the configuration.
func NewClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}
	if config.DisableSSLVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// NewClientWithTimeout builds a default client with a custom timeout.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	config := DefaultClientConfig()
	config.Timeout = timeout
	return NewClient(config)
}

// NewDefaultClient builds a client with the default configuration.
func NewDefaultClient() *http.Client {
	return NewClient(DefaultClientConfig())
}
