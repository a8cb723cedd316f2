package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestUnmarshalYAML(t *testing.T) {
	t.Run("parses duration strings", func(t *testing.T) {
		var out struct {
			D Duration `yaml:"d"`
		}
		require.NoError(t, yaml.Unmarshal([]byte(`d: 1h30m`), &out))
		assert.Equal(t, 90*time.Minute, out.D.Std())
	})

	t.Run("rejects malformed strings", func(t *testing.T) {
		var out struct {
			D Duration `yaml:"d"`
		}
		err := yaml.Unmarshal([]byte(`d: soon`), &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid duration")
	})

	t.Run("zero value is usable", func(t *testing.T) {
		var d Duration
		assert.Equal(t, time.Duration(0), d.Std())
	})
}

func TestMarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{D: Duration(2 * time.Minute)})
	require.NoError(t, err)
	assert.Contains(t, string(out), "2m0s")
}
