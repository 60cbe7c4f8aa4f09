package logger_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, logger.LevelWarn)

	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warnf("warn %d", 3)
	l.Errorf("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
}

func TestLogger_WithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, logger.LevelInfo).With("cleaner").With("yellow")

	l.Infof("removed %d rows", 3)

	assert.Contains(t, buf.String(), "[INFO] cleaner/yellow removed 3 rows")
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, logger.LevelInfo)

	l.SetLevel("debug")
	assert.Equal(t, logger.LevelDebug, l.Level())
	l.Debugf("visible")
	assert.Contains(t, buf.String(), "[DEBUG] visible")

	l.SetLevel("nonsense")
	assert.Equal(t, logger.LevelInfo, l.Level())
}

func TestParseLevel(t *testing.T) {
	lvl, ok := logger.ParseLevel("WARN")
	assert.True(t, ok)
	assert.Equal(t, logger.LevelWarn, lvl)

	lvl, ok = logger.ParseLevel("loud")
	assert.False(t, ok)
	assert.Equal(t, logger.LevelInfo, lvl)
}
