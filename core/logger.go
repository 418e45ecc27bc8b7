package core

// Logger is any leveled logger that can ship errors to an external tracker.
// Args may include an error, a map of extra fields, or the acting principal.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
