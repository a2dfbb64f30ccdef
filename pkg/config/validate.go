package config

import (
	"fmt"
	"net/url"
	"time"

	"news-crawler/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Required store settings
	if err := requireNonEmpty(c.DB.Path, "db.path"); err != nil {
		return warnings, err
	}
	if c.DB.QueueCollection == "" {
		warnings = append(warnings, "db.queue_collection is empty, defaulting to 'queue'")
		c.DB.QueueCollection = "queue"
	}
	if c.DB.DocsCollection == "" {
		warnings = append(warnings, "db.docs_collection is empty, defaulting to 'docs'")
		c.DB.DocsCollection = "docs"
	}
	if c.DB.QueueCollection == c.DB.DocsCollection {
		return warnings, fmt.Errorf(
			"%w: db.queue_collection and db.docs_collection must differ",
			utils.ErrConfigValidation)
	}

	// Logic
	if c.Logic.RequestTimeoutSeconds <= 0 {
		warnings = append(warnings, "logic.request_timeout_seconds should be > 0, defaulting to 20")
		c.Logic.RequestTimeoutSeconds = 20
	}
	if err := requireNonEmpty(c.Logic.UserAgent, "logic.user_agent"); err != nil {
		return warnings, err
	}
	if c.Logic.MaxDocuments <= 0 {
		return warnings, fmt.Errorf(
			"%w: logic.max_documents must be > 0", utils.ErrConfigValidation)
	}
	if c.Logic.RecrawlAfterHours <= 0 {
		warnings = append(warnings, "logic.recrawl_after_hours should be > 0, defaulting to 24")
		c.Logic.RecrawlAfterHours = 24
	}
	if c.Logic.DelaySeconds < 0 {
		warnings = append(warnings, "logic.delay_seconds cannot be negative, setting to 0")
		c.Logic.DelaySeconds = 0
	}
	if c.Logic.Workers <= 0 {
		warnings = append(warnings, "logic.workers should be > 0, defaulting to 8")
		c.Logic.Workers = 8
	}
	if c.Logic.Retries < 0 {
		warnings = append(warnings, "logic.retries cannot be negative, setting to 0")
		c.Logic.Retries = 0
	}
	if c.Logic.MaxInFlight <= 0 {
		c.Logic.MaxInFlight = c.Logic.Workers
	}

	// HTTP client defaults
	if c.HTTPClientSettings.MaxIdleConns <= 0 {
		c.HTTPClientSettings.MaxIdleConns = 100
	}
	if c.HTTPClientSettings.MaxIdleConnsPerHost <= 0 {
		c.HTTPClientSettings.MaxIdleConnsPerHost = c.Logic.Workers
	}
	if c.HTTPClientSettings.IdleConnTimeout <= 0 {
		c.HTTPClientSettings.IdleConnTimeout = 90 * time.Second
	}
	if c.HTTPClientSettings.TLSHandshakeTimeout <= 0 {
		c.HTTPClientSettings.TLSHandshakeTimeout = 10 * time.Second
	}
	if c.HTTPClientSettings.DialerTimeout <= 0 {
		c.HTTPClientSettings.DialerTimeout = 15 * time.Second
	}
	if c.HTTPClientSettings.DialerKeepAlive <= 0 {
		c.HTTPClientSettings.DialerKeepAlive = 30 * time.Second
	}

	// Sources
	if len(c.Sources) == 0 {
		return warnings, fmt.Errorf(
			"%w: at least one source must be configured", utils.ErrConfigValidation)
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if err := requireNonEmpty(src.Name, fmt.Sprintf("sources[%d].name", i)); err != nil {
			return warnings, err
		}
		if seen[src.Name] {
			return warnings, fmt.Errorf(
				"%w: duplicate source name %q", utils.ErrConfigValidation, src.Name)
		}
		seen[src.Name] = true

		if err := requireNonEmpty(src.SitemapIndex, fmt.Sprintf("sources[%d].sitemap_index", i)); err != nil {
			return warnings, err
		}
		if _, parseErr := url.ParseRequestURI(src.SitemapIndex); parseErr != nil {
			return warnings, fmt.Errorf(
				"%w: sources[%d].sitemap_index is not a valid URL: %v",
				utils.ErrConfigValidation, i, parseErr)
		}
		if len(src.AllowedPrefixes) == 0 {
			warnings = append(warnings, fmt.Sprintf(
				"source %q has no allowed_prefixes; every discovered URL will be rejected",
				src.Name))
		}
	}

	return warnings, nil
}
