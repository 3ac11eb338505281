package core

// Logger is any service that can log (and report) application events.
// args may contain errors, maps of extra data or a SessionInfo describing the session being served.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// SessionInfo identifies the attendance session a log entry relates to.
type SessionInfo struct {
	ID         string
	Lab        string
	Department string
}
