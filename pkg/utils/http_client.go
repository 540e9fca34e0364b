package utils

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig captures the tunables of the outbound HTTP client.
// Zero values are replaced by defaults.
type ClientConfig struct {
	Timeout               time.Duration // caps the whole request
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	DialTimeout           time.Duration
	KeepAlive             time.Duration
}

type ClientOption func(*ClientConfig)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.Timeout = d }
}

func WithResponseHeaderTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.ResponseHeaderTimeout = d }
}

func WithIdleConns(total, perHost int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxIdleConns = total
		c.MaxIdleConnsPerHost = perHost
	}
}

// NewHTTPClient builds a keep-alive client suitable for sharing across goroutines.
func NewHTTPClient(opts ...ClientOption) *http.Client {
	cfg := ClientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Timeout = defaultDuration(cfg.Timeout, 4*time.Second)
	cfg.ResponseHeaderTimeout = defaultDuration(cfg.ResponseHeaderTimeout, 3*time.Second)
	cfg.IdleConnTimeout = defaultDuration(cfg.IdleConnTimeout, 30*time.Second)
	cfg.DialTimeout = defaultDuration(cfg.DialTimeout, 3*time.Second)
	cfg.KeepAlive = defaultDuration(cfg.KeepAlive, 30*time.Second)
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 256
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = cfg.MaxIdleConns
	}

	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: cfg.KeepAlive}).DialContext,
			MaxIdleConns:          cfg.MaxIdleConns,
			MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:       cfg.IdleConnTimeout,
			ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
			ForceAttemptHTTP2:     true,
		},
	}
}

func defaultDuration(v, d time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return d
}
