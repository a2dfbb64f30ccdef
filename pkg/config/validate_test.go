package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-crawler/pkg/utils"
)

func baseConfig() AppConfig {
	return AppConfig{
		DB: DBConfig{Path: "./state", QueueCollection: "queue", DocsCollection: "docs"},
		Logic: LogicConfig{
			RequestTimeoutSeconds: 20,
			UserAgent:             "test/1.0",
			MaxDocuments:          50,
			RecrawlAfterHours:     24,
			Workers:               4,
		},
		Sources: []SourceConfig{
			{
				Name:            "alpha",
				SitemapIndex:    "https://alpha.example.com/sitemap.xml",
				AllowedPrefixes: []string{"https://alpha.example.com/"},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes without warnings", func(t *testing.T) {
		cfg := baseConfig()
		warnings, err := cfg.Validate()
		require.NoError(t, err)
		assert.Empty(t, warnings)
	})

	t.Run("missing db path is fatal", func(t *testing.T) {
		cfg := baseConfig()
		cfg.DB.Path = ""
		_, err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, utils.ErrConfigValidation))
	})

	t.Run("identical collection names are fatal", func(t *testing.T) {
		cfg := baseConfig()
		cfg.DB.DocsCollection = cfg.DB.QueueCollection
		_, err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("missing user agent is fatal", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Logic.UserAgent = "   "
		_, err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("missing budget is fatal", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Logic.MaxDocuments = 0
		_, err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("no sources is fatal", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Sources = nil
		_, err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("duplicate source names are fatal", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Sources = append(cfg.Sources, cfg.Sources[0])
		_, err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("invalid sitemap index url is fatal", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Sources[0].SitemapIndex = "not a url"
		_, err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("defaults applied with warnings", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Logic.RequestTimeoutSeconds = 0
		cfg.Logic.RecrawlAfterHours = 0
		cfg.Logic.Workers = 0
		cfg.Logic.Retries = -1
		cfg.Logic.DelaySeconds = -1

		warnings, err := cfg.Validate()
		require.NoError(t, err)
		assert.NotEmpty(t, warnings)
		assert.Equal(t, 20, cfg.Logic.RequestTimeoutSeconds)
		assert.Equal(t, 24, cfg.Logic.RecrawlAfterHours)
		assert.Equal(t, 8, cfg.Logic.Workers)
		assert.Equal(t, 0, cfg.Logic.Retries)
		assert.Equal(t, 0.0, cfg.Logic.DelaySeconds)
		assert.Equal(t, cfg.Logic.Workers, cfg.Logic.MaxInFlight)
	})

	t.Run("empty allowed prefixes only warns", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Sources[0].AllowedPrefixes = nil
		warnings, err := cfg.Validate()
		require.NoError(t, err)
		assert.NotEmpty(t, warnings)
	})
}
