package testutil

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestEnvironment provides a logger, a bounded context and a temp dir
type TestEnvironment struct {
	Logger  *logrus.Logger
	Context context.Context
	Cancel  context.CancelFunc
	TempDir string
	T       *testing.T
}

// NewTestEnvironment creates a new test environment. The context is
// cancelled when the test ends.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	return &TestEnvironment{
		Logger:  GetTestLogger(t),
		Context: ctx,
		Cancel:  cancel,
		TempDir: t.TempDir(),
		T:       t,
	}
}

// GetTestLogger returns a debug-level text logger
func GetTestLogger(t *testing.T) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	if !testing.Verbose() {
		logger.SetOutput(io.Discard)
	}
	return logger
}

// WaitForCondition polls condition until it holds or the timeout elapses
func (env *TestEnvironment) WaitForCondition(condition func() bool, timeout time.Duration, message string) {
	require.Eventually(env.T, condition, timeout, 50*time.Millisecond, message)
}

// AssertNonNegative fails when any unit is negative
func AssertNonNegative(t *testing.T, units []int) {
	for i, u := range units {
		require.GreaterOrEqual(t, u, 0, "unit %d should be non-negative", i)
	}
}

// Float64SlicesEqual compares two float64 slices with tolerance
func Float64SlicesEqual(a, b []float64, tolerance float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tolerance {
			return false
		}
	}
	return true
}

// SkipIfShort skips the test if testing.Short() is true
func SkipIfShort(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping test in short mode")
	}
}
