package fetch

import (
	"errors"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"news-crawler/pkg/config"
)

// NewClient creates the shared HTTP client used by discovery and every
// fetch worker. The per-request timeout is applied here; workers share one
// client so connection pooling works across the whole run.
func NewClient(cfg *config.AppConfig, log *logrus.Logger) *http.Client {
	settings := cfg.HTTPClientSettings

	dialer := &net.Dialer{
		Timeout:   settings.DialerTimeout,
		KeepAlive: settings.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           settings.MaxIdleConns,
		MaxIdleConnsPerHost:    settings.MaxIdleConnsPerHost,
		IdleConnTimeout:        settings.IdleConnTimeout,
		TLSHandshakeTimeout:    settings.TLSHandshakeTimeout,
		MaxResponseHeaderBytes: 1 << 20, // 1MB max header size
	}

	client := &http.Client{
		Timeout:   cfg.RequestTimeout(),
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Default Go behavior is 10 redirects max
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
	return client
}
