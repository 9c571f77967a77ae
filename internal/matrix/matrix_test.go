package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docspipe/internal/config"
)

func TestExpandNil(t *testing.T) {
	rows := Expand(nil)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0])
	assert.Equal(t, "", rows[0].Label())
}

func TestExpandCartesianProduct(t *testing.T) {
	m := &config.Matrix{
		Vars: map[string][]string{
			"os":     {"linux", "macos"},
			"python": {"3.9", "3.10"},
		},
	}
	rows := Expand(m)
	require.Len(t, rows, 4)

	labels := make([]string, 0, len(rows))
	for _, r := range rows {
		labels = append(labels, r.Label())
	}
	assert.Equal(t, []string{
		"os=linux,python=3.9",
		"os=linux,python=3.10",
		"os=macos,python=3.9",
		"os=macos,python=3.10",
	}, labels)
}

func TestExpandExclude(t *testing.T) {
	m := &config.Matrix{
		Vars: map[string][]string{
			"os":     {"linux", "macos"},
			"python": {"3.9", "3.10"},
		},
		Exclude: []map[string]string{
			{"os": "macos", "python": "3.9"},
		},
	}
	rows := Expand(m)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.NotEqual(t, "os=macos,python=3.9", r.Label())
	}
}

func TestExpandInclude(t *testing.T) {
	m := &config.Matrix{
		Vars: map[string][]string{
			"os": {"linux"},
		},
		Include: []map[string]string{
			{"os": "windows", "python": "3.11"},
		},
	}
	rows := Expand(m)
	require.Len(t, rows, 2)
	assert.Equal(t, "os=windows,python=3.11", rows[1].Label())
}

func TestExpandExcludeEverything(t *testing.T) {
	m := &config.Matrix{
		Vars: map[string][]string{
			"os": {"linux"},
		},
		Exclude: []map[string]string{
			{"os": "linux"},
		},
	}
	rows := Expand(m)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0])
}

func TestRowEnv(t *testing.T) {
	row := Row{"os": "linux", "python": "3.9"}
	env := row.Env()
	assert.Equal(t, "linux", env["MATRIX_OS"])
	assert.Equal(t, "3.9", env["MATRIX_PYTHON"])
}
