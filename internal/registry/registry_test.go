package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/subscription-sentry/internal/registry"
)

func TestIsKnownIgnoresCase(t *testing.T) {
	r := registry.New(nil)

	assert.True(t, r.IsKnown("Netflix"))
	assert.True(t, r.IsKnown("netflix"))
	assert.True(t, r.IsKnown("  NETFLIX  "))
	assert.False(t, r.IsKnown("Netflix Premium"))
	assert.False(t, r.IsKnown(""))
}

func TestCanonicalReturnsRegistryCasing(t *testing.T) {
	r := registry.New(nil)

	name, ok := r.Canonical("hulu")
	require.True(t, ok)
	assert.Equal(t, "Hulu", name)

	_, ok = r.Canonical("not-a-merchant")
	assert.False(t, ok)
}

func TestNamesOrderedLongestFirst(t *testing.T) {
	r := registry.New(nil)

	names := r.Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.GreaterOrEqual(t, len(names[i-1]), len(names[i]))
	}

	appleTV := indexOf(names, "Apple TV+")
	apple := indexOf(names, "Apple")
	require.GreaterOrEqual(t, appleTV, 0)
	require.GreaterOrEqual(t, apple, 0)
	assert.Less(t, appleTV, apple, "longer name must be tried first")
}

func TestNewWithNamesTrimsAndDedupes(t *testing.T) {
	r := registry.NewWithNames([]string{" Quizlet ", "quizlet", "", "Todoist"}, nil)

	assert.Len(t, r.Names(), 2)
	assert.True(t, r.IsKnown("Quizlet"))
	assert.True(t, r.IsKnown("todoist"))

	name, ok := r.Canonical("QUIZLET")
	require.True(t, ok)
	assert.Equal(t, "Quizlet", name, "first spelling wins")
}

func indexOf(names []string, want string) int {
	for i, name := range names {
		if name == want {
			return i
		}
	}
	return -1
}
