package config

import "time"

// AppConfig holds the tool configuration persisted under ~/.vcfunnel.
type AppConfig struct {
	// OAuth client identity plus the refresh token used for BigQuery access.
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	RefreshToken string `json:"refresh_token" yaml:"refresh_token"`

	// GA4 export location.
	ProjectID  string `json:"project_id" yaml:"project_id"`                       // GCP project, e.g. "noiz-430406"
	DatasetID  string `json:"dataset_id" yaml:"dataset_id"`                       // analytics dataset, e.g. "analytics_510746763"
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"` // report artifact destination

	// Request handling.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty"`
	RetryAttempts         int `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty"`

	// Local result cache.
	CacheEnabled  bool   `json:"cache_enabled" yaml:"cache_enabled"`
	CachePath     string `json:"cache_path,omitempty" yaml:"cache_path,omitempty"`
	CacheTTLHours int    `json:"cache_ttl_hours,omitempty" yaml:"cache_ttl_hours,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// HasCredentials reports whether the OAuth fields needed for API access are
// all present.
func (c *AppConfig) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// HasExportLocation reports whether the BigQuery export coordinates are set.
func (c *AppConfig) HasExportLocation() bool {
	return c.ProjectID != "" && c.DatasetID != ""
}
