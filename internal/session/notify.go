package session

import "log/slog"

// Notifier shows messages to the end user.
type Notifier interface {
	Error(msg string)
	Info(msg string)
}

// LogNotifier writes user messages to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}

	return n.Logger
}

// Error logs msg at error level.
func (n LogNotifier) Error(msg string) {
	n.logger().Error(msg)
}

// Info logs msg at info level.
func (n LogNotifier) Info(msg string) {
	n.logger().Info(msg)
}
