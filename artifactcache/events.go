package artifactcache

import (
	"fmt"

	"github.com/kbukum/buildgraph/logger"
)

// Severity of a console event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ConsoleEvent is a user-facing message.
type ConsoleEvent struct {
	Severity Severity
	Message  string
}

// Warning builds a warning event.
func Warning(format string, args ...any) ConsoleEvent {
	return ConsoleEvent{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)}
}

// EventBus receives user-facing events.
type EventBus interface {
	Post(ev ConsoleEvent)
}

// EventBusFunc adapts a function to EventBus.
type EventBusFunc func(ev ConsoleEvent)

// Post calls f(ev).
func (f EventBusFunc) Post(ev ConsoleEvent) { f(ev) }

// LogBus posts events to a logger at their severity.
type LogBus struct {
	log *logger.Logger
}

// NewLogBus creates a LogBus writing to log.
func NewLogBus(log *logger.Logger) *LogBus {
	return &LogBus{log: logger.OrGlobal(log).WithComponent("console")}
}

func (b *LogBus) Post(ev ConsoleEvent) {
	switch ev.Severity {
	case SeverityError:
		b.log.Error(ev.Message)
	case SeverityWarning:
		b.log.Warn(ev.Message)
	default:
		b.log.Info(ev.Message)
	}
}
