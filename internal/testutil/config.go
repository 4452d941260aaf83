package testutil

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/mkoivisto/alexandria/internal/config"
)

// ConfigState holds the state of the config package variables.
type ConfigState struct {
	CachePath         string
	DatastorePath     string
	GoogleBooksAPIKey string
	GeminiAPIKey      string
	GeminiModel       string
}

// SaveConfigState captures the current state of config package variables.
func SaveConfigState() ConfigState {
	return ConfigState{
		CachePath:         config.CachePath,
		DatastorePath:     config.DatastorePath,
		GoogleBooksAPIKey: config.GoogleBooksAPIKey,
		GeminiAPIKey:      config.GeminiAPIKey,
		GeminiModel:       config.GeminiModel,
	}
}

// RestoreConfigState restores the config package variables to a saved state.
func RestoreConfigState(state ConfigState) {
	config.CachePath = state.CachePath
	config.DatastorePath = state.DatastorePath
	config.GoogleBooksAPIKey = state.GoogleBooksAPIKey
	config.GeminiAPIKey = state.GeminiAPIKey
	config.GeminiModel = state.GeminiModel
}

// ResetConfig saves the current config state and schedules restoration
// when the test completes. It also resets viper.
func ResetConfig(t *testing.T) {
	t.Helper()

	state := SaveConfigState()
	viper.Reset()

	t.Cleanup(func() {
		RestoreConfigState(state)
		viper.Reset()
	})
}

// SetViperValue sets a viper configuration value and schedules cleanup.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	oldValue := viper.Get(key)
	hadValue := viper.IsSet(key)

	viper.Set(key, value)

	t.Cleanup(func() {
		if hadValue {
			viper.Set(key, oldValue)
		}
		// viper has no Unset; a previously unset key stays set.
	})
}

// SetupTestCache points the cache at a file inside the test environment
// and returns its path.
func SetupTestCache(t *testing.T, env *TestEnv) string {
	t.Helper()

	dbPath := env.Path("cache.db")
	SetViperValue(t, "CachePath", dbPath)
	config.CachePath = dbPath
	return dbPath
}
