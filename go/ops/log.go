// Package ops adapts the framework's diagnostic output to logrus, the
// way the surrounding host process reports service lifecycle, script
// errors, and resource warnings.
package ops

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger with the small set of structured events
// the core subsystems and their dispatcher need to report. The zero
// value is not usable; use New.
type Logger struct {
	*log.Logger
}

// New returns a Logger writing to logrus's standard logger.
func New() *Logger {
	return &Logger{Logger: log.StandardLogger()}
}

func handleField(handle uint32) string {
	return fmt.Sprintf(":%08x", handle)
}

// MemoryWarning logs the signal(1)-style memory report: current usage
// against the service's handle, in megabytes for readability.
func (l *Logger) MemoryWarning(handle uint32, bytes uint64) {
	l.WithFields(log.Fields{
		"handle": handleField(handle),
		"bytes":  bytes,
	}).Warnf("%.2f Mb", float64(bytes)/(1024*1024))
}

// ScriptError logs a failure at a named stage of a service's lifecycle
// (init, on_message, runtime, gateway), including the interpreter's traceback
// when available.
func (l *Logger) ScriptError(handle uint32, stage string, err error) {
	l.WithFields(log.Fields{
		"handle": handleField(handle),
		"stage":  stage,
	}).Errorf("%v", err)
}

// Signal logs a signal(n) delivery, the way the original's service_snlua
// reports an unrecognized signal value.
func (l *Logger) Signal(handle uint32, signal int) {
	l.WithFields(log.Fields{
		"handle": handleField(handle),
	}).Infof("recv a signal %d", signal)
}

// Lifecycle logs service creation/exit at info level.
func (l *Logger) Lifecycle(handle uint32, event string) {
	l.WithFields(log.Fields{
		"handle": handleField(handle),
	}).Info(event)
}
