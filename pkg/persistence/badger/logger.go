package badger

import (
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// zapBadgerLogger routes badger's printf-style logging into a named zap logger.
// Badger is chatty at info level during compaction, so info is demoted to debug.
type zapBadgerLogger struct {
	sugar *zap.SugaredLogger
}

var _ badgerdb.Logger = (*zapBadgerLogger)(nil)

func newZapBadgerLogger(l *zap.Logger) *zapBadgerLogger {
	return &zapBadgerLogger{sugar: l.Named("badger").Sugar()}
}

func (b *zapBadgerLogger) Errorf(format string, args ...interface{}) {
	b.sugar.Errorf(format, args...)
}

func (b *zapBadgerLogger) Warningf(format string, args ...interface{}) {
	b.sugar.Warnf(format, args...)
}

func (b *zapBadgerLogger) Infof(format string, args ...interface{}) {
	b.sugar.Debugf(format, args...)
}

func (b *zapBadgerLogger) Debugf(format string, args ...interface{}) {
	b.sugar.Debugf(format, args...)
}
