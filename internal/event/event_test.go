package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, s := range []string{"push", "pull_request", "dispatch", "schedule"} {
		got, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, Type(s), got)
	}

	_, err := Parse("merge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestPRKey(t *testing.T) {
	assert.Equal(t, "123", Event{Type: PullRequest, PRNumber: 123}.PRKey())
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "push to main", Event{Type: Push, Branch: "main"}.String())
	assert.Equal(t, "pull_request #4 (fix-typo)", Event{Type: PullRequest, PRNumber: 4, Branch: "fix-typo"}.String())
	assert.Equal(t, "dispatch", Event{Type: Dispatch}.String())
	assert.Equal(t, "schedule", Event{Type: Schedule}.String())
}
