// Package logrus adapts a *logrus.Entry to distcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/distcache"
)

var _ distcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f distcache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f distcache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f distcache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f distcache.Fields) { l.with(f).Error(msg) }

// "err" goes through WithError so it lands under logrus.ErrorKey.
func (l LogrusLogger) with(f distcache.Fields) *logrus.Entry {
	e := l.E
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			e = e.WithError(err)
			continue
		}
		fields[k] = v
	}
	return e.WithFields(fields)
}
