package actuator

import "log/slog"

// Log is an Actuator that only records calls at debug level. It backs
// dry runs and hosts without an injection backend.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "actuator", "backend", "log")}
}

func (l *Log) MoveRelative(dx, dy int) error {
	l.logger.Debug("move", "dx", dx, "dy", dy)
	return nil
}

func (l *Log) Scroll(amount int) error {
	l.logger.Debug("scroll", "amount", amount)
	return nil
}

func (l *Log) Press(b Button) error {
	l.logger.Debug("press", "button", b)
	return nil
}

func (l *Log) Release(b Button) error {
	l.logger.Debug("release", "button", b)
	return nil
}

func (l *Log) Click(b Button) error {
	l.logger.Debug("click", "button", b)
	return nil
}

func (l *Log) Close() error { return nil }
