package config

import "time"

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"required,min=1,max=1000"`
	BurstSize         int `yaml:"burst_size" validate:"required,min=1,max=100"`
}

type RefreshConfig struct {
	// Interval between unconditional IAM token refreshes
	Interval time.Duration `yaml:"interval" validate:"required,min=1m,max=24h"`
}

func DefaultAPI() APIConfig {
	return APIConfig{
		TokenURL:      DefaultTokenURL,
		CompletionURL: DefaultCompletionURL,
		ModelURI:      DefaultModelURI,
		Timeout:       60 * time.Second,
		MaxRetries:    2,
		RateLimit:     DefaultRateLimit(),
	}
}

func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         5,
	}
}

func DefaultRefresh() RefreshConfig {
	return RefreshConfig{
		Interval: time.Hour,
	}
}
