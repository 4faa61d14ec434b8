package testutil

import (
	"flag"
	"os"

	log "github.com/sirupsen/logrus"
)

var (
	logFile   = flag.String("log-file", "", "`file` to use for logging")
	logLevel  = flag.String("log-level", "trace",
		"log level: trace, debug, info, warn, error, fatal, or panic")
	logStderr = flag.Bool("log-stderr", false, "log to standard error")
)

// SetupLogger directs test logging to file, so that trace output from the
// managers under test ends up somewhere inspectable; flags override the
// destination and level.
func SetupLogger(file string) *log.Logger {
	if !*logStderr {
		if *logFile != "" {
			file = *logFile
		}

		w, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			panic(err)
		}
		log.SetOutput(w)
	}

	ll, err := log.ParseLevel(*logLevel)
	if err != nil {
		panic(err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("tests starting")
	return log.StandardLogger()
}
