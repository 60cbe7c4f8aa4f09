package gorm

import (
	"fmt"
	"strings"
	"time"

	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"

	gormlogger "gorm.io/gorm/logger"
)

// NewGormLogger creates a gorm logger writing through the default Logger at the given level.
func NewGormLogger(level string) gormlogger.Interface {
	var gormLevel gormlogger.LogLevel
	switch config.LogLevel(strings.ToUpper(level)) {
	case config.LogLevelError:
		gormLevel = gormlogger.Error
	case config.LogLevelWarn:
		gormLevel = gormlogger.Warn
	case config.LogLevelInfo, config.LogLevelDebug:
		gormLevel = gormlogger.Info
	default:
		gormLevel = gormlogger.Silent
	}

	return gormlogger.New(
		NewGormWriter(logger.Default().With("sql")),
		gormlogger.Config{
			SlowThreshold:             2 * time.Second, // stage statements scan whole partitions
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormWriter redirects GORM log output to a Logger.
type GormWriter struct {
	log *logger.Logger
}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter(l *logger.Logger) *GormWriter {
	return &GormWriter{log: l}
}

// Printf implements the gorm logger Writer interface.
// Statement traces ("[12.3ms] [rows:5] SELECT ...") go to DEBUG, everything else to INFO.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if strings.Contains(msg, "[rows:") {
		w.log.Debugf("%s", msg)
		return
	}
	w.log.Infof("%s", msg)
}
