// Package logging configures the process-wide logger used by the launch
// engine. Logging infrastructure proper is out of scope for the engine's
// specification, but every ambient component still logs through here the
// way the teacher's own code reaches for logrus rather than stdlib log.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// L is the package-level logger. Components take it as a parameter where
// reasonable, but a package-level instance matches the teacher's own use of
// the global logrus logger (e.g. config.go's logrus.Warnf call).
var L = logrus.New()

func init() {
	L.SetOutput(os.Stderr)
	L.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	L.SetLevel(logrus.InfoLevel)
}

// SetDebug enables debug-level logging, used by the CLI's --debug flag.
func SetDebug(on bool) {
	if on {
		L.SetLevel(logrus.DebugLevel)
		return
	}
	L.SetLevel(logrus.InfoLevel)
}
