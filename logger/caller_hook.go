package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// packagePrefix identifies this package's own frames so the reported
// caller is the real call site, not one of the wrapper methods.
const packagePrefix = "sentimentflow/logger"

// callerHook rewrites entry.Caller to the first frame belonging to
// neither logrus nor this package.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if fn := frame.Function; fn != "" && !internalFrame(fn) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func internalFrame(fn string) bool {
	return strings.Contains(fn, "sirupsen/logrus") || strings.Contains(fn, packagePrefix)
}
