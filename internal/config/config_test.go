package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		MaxContextTokens:  3000,
		SmoothingFactor:   0.8,
		MinInteractions:   2,
		MaxInteractions:   50,
		SummarizerTimeout: 30 * time.Second,
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	// alpha = 1 is the upper boundary and allowed
	cfg := validConfig()
	cfg.SmoothingFactor = 1
	require.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero ceiling", func(c *Config) { c.MaxContextTokens = 0 }, ErrMaxContextTokens},
		{"negative ceiling", func(c *Config) { c.MaxContextTokens = -1 }, ErrMaxContextTokens},
		{"alpha zero", func(c *Config) { c.SmoothingFactor = 0 }, ErrSmoothingFactor},
		{"alpha above one", func(c *Config) { c.SmoothingFactor = 1.2 }, ErrSmoothingFactor},
		{"min zero", func(c *Config) { c.MinInteractions = 0 }, ErrInteractionRange},
		{"min above max", func(c *Config) { c.MinInteractions = 60 }, ErrInteractionRange},
		{"zero timeout", func(c *Config) { c.SummarizerTimeout = 0 }, ErrTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}
}
