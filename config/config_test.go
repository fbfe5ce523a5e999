package config

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok {
			flatten(key, m, out)
			continue
		}
		out[key] = v
	}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestSampleCoversDefaults(t *testing.T) {
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(Sample(), &raw))

	flat := map[string]any{}
	flatten("", raw, flat)
	assert.Equal(t, keys(Defaults()), keys(flat))
	assert.Equal(t, "240ms", flat["debounce"])
}

func TestMarshalUsesDurationStrings(t *testing.T) {
	var f File
	f.Log.Level = "debug"
	f.PollInterval = 10 * time.Second
	f.Debounce = 240 * time.Millisecond
	f.DBus.Enabled = true

	out, err := yaml.Marshal(f)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(out, &raw))
	assert.Equal(t, "10s", raw["poll_interval"])
	assert.Equal(t, "240ms", raw["debounce"])
	assert.Equal(t, map[string]any{"enabled": true}, raw["dbus"])
	assert.Equal(t, []any{}, raw["ddc"].(map[string]any)["extra_args"])
}
