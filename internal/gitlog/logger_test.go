package gitlog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/internal/gitlog"
)

type fakeLogger struct{}

func (fakeLogger) Debug(string, ...interface{}) {}
func (fakeLogger) Info(string, ...interface{})  {}
func (fakeLogger) Warn(string, ...interface{})  {}
func (fakeLogger) Error(string, ...interface{}) {}

func TestContextRoundTrip(t *testing.T) {
	custom := fakeLogger{}
	ctx := gitlog.ToContext(context.Background(), custom)

	got := gitlog.FromContext(ctx)
	assert.Equal(t, custom, got)

	// The base context is untouched.
	got = gitlog.FromContext(context.Background())
	assert.Equal(t, gitlog.Noop, got)
}

func TestFromContextWithoutLoggerReturnsNoop(t *testing.T) {
	got := gitlog.FromContext(context.Background())
	require.Equal(t, gitlog.Noop, got)

	// Noop must not panic on any method.
	got.Debug("msg", "k", "v")
	got.Info("msg")
	got.Warn("msg")
	got.Error("msg")
}
