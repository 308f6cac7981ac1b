package emitter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
logging:
  level: debug
  format: json
handlers:
  CounterState.increment:
    cancel_uncompleted: false
  AnimalsState.addAnimal:
    payload: Capybara
`

const tomlConfig = `
[logging]
level = "warn"
file = "emitter.log"
max_size_mb = 5

[handlers."CounterState.increment"]
cancel_uncompleted = true
`

func TestParseConfigYAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(yamlConfig), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.format())

	inc, ok := cfg.override("CounterState.increment")
	require.True(t, ok)
	require.NotNil(t, inc.CancelUncompleted)
	assert.False(t, *inc.CancelUncompleted)

	animal, ok := cfg.override("AnimalsState.addAnimal")
	require.True(t, ok)
	assert.Equal(t, "Capybara", animal.Payload)
	assert.Nil(t, animal.CancelUncompleted)
}

func TestParseConfigTOML(t *testing.T) {
	cfg, err := ParseConfig([]byte(tomlConfig), ".toml")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.level())
	assert.Equal(t, "console", cfg.Logging.format())
	assert.Equal(t, "emitter.log", cfg.Logging.File)
	assert.Equal(t, 5, cfg.Logging.MaxSizeMB)

	inc, ok := cfg.override("CounterState.increment")
	require.True(t, ok)
	require.NotNil(t, inc.CancelUncompleted)
	assert.True(t, *inc.CancelUncompleted)
}

func TestParseConfigJSON(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"logging":{"level":"trace"}}`), "json")
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.Logging.level())
	_, ok := cfg.override("anything")
	assert.False(t, ok)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
	}{
		{name: "unknown format", data: "", format: "ini"},
		{name: "bad yaml", data: "logging: [", format: "yaml"},
		{name: "bad level", data: "logging:\n  level: loud\n", format: "yaml"},
		{name: "bad format", data: "logging:\n  format: xml\n", format: "yaml"},
		{name: "negative rotation", data: "logging:\n  max_backups: -1\n", format: "yaml"},
		{name: "empty handler type", data: "handlers:\n  \"\":\n    payload: 1\n", format: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.True(t, IsKind(err, ErrCodeInvalidConfig))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "emitter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Handlers, 2)

	path = filepath.Join(dir, "emitter.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlConfig), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Handlers, 1)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.True(t, IsKind(err, ErrCodeInvalidConfig))
}

func TestBindingForAppliesOverrides(t *testing.T) {
	enabled := true
	meta := HandlerMetadata{Type: "CounterState.increment"}
	cfg := Config{Handlers: map[string]HandlerOverride{
		"CounterState.increment": {CancelUncompleted: &enabled, Payload: 3},
	}}

	b := bindingFor(meta, cfg)
	assert.True(t, b.cancelUncompleted)
	assert.True(t, b.hasPayload)
	assert.Equal(t, 3, b.payload)

	b = bindingFor(meta, Config{})
	assert.False(t, b.cancelUncompleted)
	assert.False(t, b.hasPayload)
}
