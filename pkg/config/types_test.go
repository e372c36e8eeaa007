package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalYAML_String(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
	}{
		{`"1s"`, time.Second},
		{`"5m"`, 5 * time.Minute},
		{`"1h30m"`, 90 * time.Minute},
		{`"100ms"`, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			require.NoError(t, yaml.Unmarshal([]byte(tt.input), &d))
			assert.Equal(t, tt.expected, d.Duration())
		})
	}
}

func TestDuration_UnmarshalYAML_Integer(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte("1000000000"), &d))
	assert.Equal(t, time.Second, d.Duration())
}

func TestDuration_UnmarshalYAML_Invalid(t *testing.T) {
	var d Duration
	assert.Error(t, yaml.Unmarshal([]byte(`"not-a-duration"`), &d))
}

func TestDuration_MarshalYAML(t *testing.T) {
	d := Duration(15 * time.Minute)
	out, err := yaml.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, "15m0s\n", string(out))
}

func TestBoolValue(t *testing.T) {
	assert.True(t, BoolValue(nil, true))
	assert.False(t, BoolValue(nil, false))
	assert.False(t, BoolValue(BoolPtr(false), true))
	assert.True(t, BoolValue(BoolPtr(true), false))
}
