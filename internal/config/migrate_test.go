package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateV0Renames(t *testing.T) {
	old := map[string]interface{}{
		"prefer_local_providers": true,
		"retry_attempts":         5,
		"providers": map[string]interface{}{
			"openai": map[string]interface{}{
				"endpoint":   "https://api.openai.com/v1",
				"rate_limit": 60,
			},
		},
	}

	out, err := Migrate(old)
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, out["config_version"])
	assert.Equal(t, true, out["prefer_local"])
	assert.Equal(t, 5, out["max_attempts"])
	assert.NotContains(t, out, "prefer_local_providers")
	assert.NotContains(t, out, "retry_attempts")

	pc := out["providers"].(map[string]interface{})["openai"].(map[string]interface{})
	assert.Equal(t, "https://api.openai.com/v1", pc["base_url"])
	assert.Equal(t, 60, pc["request_limit"])
	assert.Equal(t, 60, pc["throttle_window"])
	assert.NotContains(t, pc, "endpoint")
	assert.NotContains(t, pc, "rate_limit")
}

func TestMigrateCurrentVersionUntouched(t *testing.T) {
	settings := map[string]interface{}{
		"config_version": CurrentVersion,
		"retry_attempts": 9, // v1 下的同名键不再迁移
		"providers": map[string]interface{}{
			"openai": map[string]interface{}{"endpoint": "http://x"},
		},
	}

	out, err := Migrate(settings)
	require.NoError(t, err)

	assert.Equal(t, 9, out["retry_attempts"])
	pc := out["providers"].(map[string]interface{})["openai"].(map[string]interface{})
	assert.Equal(t, "http://x", pc["endpoint"])
}

func TestMigrateNewerVersionRejected(t *testing.T) {
	_, err := Migrate(map[string]interface{}{"config_version": CurrentVersion + 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestMigrateInvalidVersionType(t *testing.T) {
	_, err := Migrate(map[string]interface{}{"config_version": "one"})
	assert.Error(t, err)
}

func TestMigrateFloatVersion(t *testing.T) {
	// yaml解码可能给出float64
	out, err := Migrate(map[string]interface{}{"config_version": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, out["config_version"])
}

func TestMigrateDoesNotMutateInput(t *testing.T) {
	old := map[string]interface{}{
		"retry_attempts": 3,
		"providers": map[string]interface{}{
			"openai": map[string]interface{}{"endpoint": "http://x"},
		},
	}

	_, err := Migrate(old)
	require.NoError(t, err)

	assert.Equal(t, 3, old["retry_attempts"])
	assert.NotContains(t, old, "max_attempts")
	pc := old["providers"].(map[string]interface{})["openai"].(map[string]interface{})
	assert.Equal(t, "http://x", pc["endpoint"])
}

func TestMigrateKeepsExistingNewKey(t *testing.T) {
	// 新旧键并存时保留新键的值
	out, err := Migrate(map[string]interface{}{
		"retry_attempts": 3,
		"max_attempts":   7,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, out["max_attempts"])
	assert.NotContains(t, out, "retry_attempts")
}
