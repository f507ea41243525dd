package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogLevel decouples callers from importing logrus directly.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// LogSystemEvent records a component-level lifecycle event — resource
// detection, config reload, controller start/stop — the things an operator
// wants in the log but that aren't tied to a single target.
func LogSystemEvent(component, event, message string, level LogLevel, extra map[string]interface{}) {
	if Instance == nil {
		return
	}
	fields := logrus.Fields{"component": component, "event": event}
	for k, v := range extra {
		fields[k] = v
	}
	entry := Instance.logger.WithFields(fields)
	msg := fmt.Sprintf("%s: %s", component, event)
	if message != "" {
		msg = fmt.Sprintf("%s: %s", msg, message)
	}
	switch toLogrusLevel(level) {
	case logrus.DebugLevel:
		entry.Debug(msg)
	case logrus.WarnLevel:
		entry.Warn(msg)
	case logrus.ErrorLevel:
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
}

// LogScanEvent records per-target scan progress: useful for -v/-vv runs
// where the TUI isn't attached and the log file is the only record.
func LogScanEvent(target, scanType, status string, portsDone, portsTotal int, extra map[string]interface{}) {
	if Instance == nil {
		return
	}
	fields := logrus.Fields{
		"target":     target,
		"scan_type":  scanType,
		"status":     status,
		"ports_done": portsDone,
		"ports_total": portsTotal,
	}
	for k, v := range extra {
		fields[k] = v
	}
	msg := fmt.Sprintf("scan %s: %s (%d/%d ports)", status, target, portsDone, portsTotal)
	switch status {
	case "failed":
		Instance.logger.WithFields(fields).Error(msg)
	default:
		Instance.logger.WithFields(fields).Debug(msg)
	}
}
