package logger

import (
	raven "github.com/getsentry/raven-go"
)

// EnableCrashReporting registers a LevelFatal handler that reports the
// line to Sentry before the process exits: the handler waits for the
// send to finish (bounded by raven's own timeout), so the report is out
// before Fatalf's os.Exit. It is optional — call it only when a DSN was
// actually configured; no package in this tree calls it. Only fatal
// lines reach the handler, so normal logging never waits on network I/O.
func EnableCrashReporting(l *Logger, dsn, release string) error {
	client, err := raven.New(dsn)
	if err != nil {
		return err
	}
	client.SetRelease(release)
	l.AddHandler(LevelFatal, func(_ LogLevel, s string) {
		client.CaptureErrorAndWait(&fatalError{s}, nil)
	})
	return nil
}

// fatalError adapts a formatted log line to the error interface
// raven.Client.CaptureErrorAndWait expects.
type fatalError struct{ msg string }

func (e *fatalError) Error() string { return e.msg }
