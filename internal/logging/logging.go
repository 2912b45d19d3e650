// Package logging constructs the *logrus.Logger every component receives
// at construction, rather than reaching for logrus.StandardLogger() outside
// cmd/doxy.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Verbosity maps the CLI's repeated -v flag to a logrus level. Default (0)
// is WarnLevel, so a clean run stays silent on stderr.
type Verbosity int

const (
	VerbosityDefault Verbosity = 0
	VerbosityInfo    Verbosity = 1
	VerbosityDebug   Verbosity = 2
)

// New builds a logger writing to out (normally os.Stderr — findings are
// the only thing that ever goes to stdout) at the level Verbosity maps to,
// with logrus's structured text formatter so fields stay queryable rather
// than interpolated into the message.
func New(v Verbosity, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch {
	case v >= VerbosityDebug:
		log.SetLevel(logrus.DebugLevel)
	case v >= VerbosityInfo:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

// VerbosityFromFlagCount converts a repeated -v flag count into a Verbosity,
// clamping anything beyond -vv to debug.
func VerbosityFromFlagCount(count int) Verbosity {
	switch {
	case count >= 2:
		return VerbosityDebug
	case count == 1:
		return VerbosityInfo
	default:
		return VerbosityDefault
	}
}
