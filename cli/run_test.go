package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Nistp/SerialTerminalGUI/testsuite"
)

func suiteOf(names ...string) []testsuite.TestCase {
	var out []testsuite.TestCase
	for _, n := range names {
		out = append(out, testsuite.NewTestCase(n, "AT"))
	}
	return out
}

func TestSelectTests(t *testing.T) {
	suite := suiteOf("alpha", "beta", "gamma")
	suite[1].Enabled = false

	t.Run("default picks enabled", func(t *testing.T) {
		got, err := selectTests(suite, nil)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "alpha", got[0].Name)
		require.Equal(t, "gamma", got[1].Name)
	})

	t.Run("named selection ignores enabled flag", func(t *testing.T) {
		got, err := selectTests(suite, []string{"beta"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "beta", got[0].Name)
	})

	t.Run("order follows the names given", func(t *testing.T) {
		got, err := selectTests(suite, []string{"gamma", "alpha"})
		require.NoError(t, err)
		require.Equal(t, "gamma", got[0].Name)
		require.Equal(t, "alpha", got[1].Name)
	})

	t.Run("unknown name errors", func(t *testing.T) {
		_, err := selectTests(suite, []string{"delta"})
		require.Error(t, err)
	})

	t.Run("no enabled tests errors", func(t *testing.T) {
		all := suiteOf("one")
		all[0].Enabled = false
		_, err := selectTests(all, nil)
		require.Error(t, err)
	})
}

func TestPreview(t *testing.T) {
	require.Equal(t, "a | b", preview("a\nb"))
	long := make([]byte, 80)
	for i := range long {
		long[i] = 'x'
	}
	require.Len(t, preview(string(long)), 50)
}
