package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Parallel()
	for _, dev := range []bool{true, false} {
		logger, err := New(dev)
		require.NoError(t, err)
		assert.Equal(t, dev, logger.Core().Enabled(zapcore.DebugLevel), "development=%t", dev)
	}
}

func TestComponentTagsEntries(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)

	Component(zap.New(core), "deployer").Info("batch uploaded")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "deployer", entries[0].ContextMap()["component"])
}

func TestNilLoggerIsSafe(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		OrNop(nil).Info("discarded")
		Component(nil, "crawler").Warn("discarded")
	})
}
