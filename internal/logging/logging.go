package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// New returns a text logger writing to stderr. Debug raises the level so
// per-request and per-file details are shown.
func New(debug bool) *log.Logger {
	return NewWithOutput(os.Stderr, debug)
}

func NewWithOutput(w io.Writer, debug bool) *log.Logger {
	l := log.New()
	l.SetOutput(w)
	l.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	l.SetLevel(log.InfoLevel)
	if debug {
		l.SetLevel(log.DebugLevel)
	}
	return l
}

// Discard is a logger for tests and library callers that want no output.
func Discard() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}
