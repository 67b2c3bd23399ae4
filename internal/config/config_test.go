package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, "dishDecision", cfg.Tables.DefaultTable)
				assert.False(t, cfg.Tables.RequireMatch)
				assert.False(t, cfg.HasDatabase())
				assert.True(t, cfg.Metrics.Enabled)
				assert.Equal(t, 1, cfg.Logging.SampleRate)
			},
		},
		{
			name: "overrides",
			envVars: map[string]string{
				"PORT":                 "9000",
				"TABLES_DIR":           "/etc/decisions",
				"WATCH_TABLES":         "true",
				"REQUIRE_MATCH":        "true",
				"DEFAULT_TABLE":        "beverages",
				"REFRESH_SCHEDULE":     "@every 30s",
				"DATABASE_URL":         "postgres://user:pass@db:5432/decisions?sslmode=disable",
				"CORS_ALLOWED_ORIGINS": "https://a.example.com, https://b.example.com",
				"WRITE_TIMEOUT":        "45s",
				"LOG_LEVEL":            "debug",
				"METRICS_ENABLED":      "false",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, 45*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, "/etc/decisions", cfg.Tables.Dir)
				assert.True(t, cfg.Tables.Watch)
				assert.True(t, cfg.Tables.RequireMatch)
				assert.Equal(t, "beverages", cfg.Tables.DefaultTable)
				assert.Equal(t, "@every 30s", cfg.Tables.RefreshSchedule)
				assert.True(t, cfg.HasDatabase())
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.False(t, cfg.Metrics.Enabled)
			},
		},
		{
			name:    "port out of range",
			envVars: map[string]string{"PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "watch without directory",
			envVars: map[string]string{"WATCH_TABLES": "true"},
			wantErr: true,
		},
		{
			name:    "unknown log level",
			envVars: map[string]string{"LOG_LEVEL": "chatty"},
			wantErr: true,
		},
		{
			name:    "invalid database url",
			envVars: map[string]string{"DATABASE_URL": "not a url"},
			wantErr: true,
		},
		{
			name:    "malformed postgres url",
			envVars: map[string]string{"DATABASE_URL": "postgres://%zz"},
			wantErr: true,
		},
		{
			name:    "key value connection string",
			envVars: map[string]string{"DATABASE_URL": "host=localhost port=5432 user=test dbname=decisions sslmode=disable"},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.HasDatabase())
				assert.Equal(t, "host=localhost port=5432 user=test dbname=decisions sslmode=disable", cfg.Database.URL)
			},
		},
		{
			name:    "unparsable values fall back to defaults",
			envVars: map[string]string{"PORT": "eighty", "READ_TIMEOUT": "soon", "REQUIRE_MATCH": "maybe"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.False(t, cfg.Tables.RequireMatch)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{
				"PORT", "TABLES_DIR", "WATCH_TABLES", "REQUIRE_MATCH", "DEFAULT_TABLE",
				"REFRESH_SCHEDULE", "DATABASE_URL", "CORS_ALLOWED_ORIGINS", "READ_TIMEOUT",
				"WRITE_TIMEOUT", "LOG_LEVEL", "METRICS_ENABLED",
			} {
				t.Setenv(key, "")
			}
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
