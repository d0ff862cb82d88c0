package telemetry

import (
	"log"

	"github.com/rollbar/rollbar-go"
)

// Reporter receives errors nobody classified. Implementations must not block
// the caller for long.
type Reporter interface {
	Report(err error, context map[string]interface{})
	Close()
}

// NewReporter returns a Rollbar reporter when token is set, a log-only one otherwise
func NewReporter(token, environment, codeVersion string) Reporter {
	if token == "" {
		return logReporter{}
	}
	rollbar.SetToken(token)
	rollbar.SetEnvironment(environment)
	rollbar.SetCodeVersion(codeVersion)
	rollbar.SetEnabled(true)
	return rollbarReporter{}
}

type logReporter struct{}

func (logReporter) Report(err error, context map[string]interface{}) {
	log.Printf("ERROR: %v %v", err, context)
}

func (logReporter) Close() {}

type rollbarReporter struct{}

func (rollbarReporter) Report(err error, context map[string]interface{}) {
	log.Printf("ERROR: %v %v", err, context)
	if context != nil {
		rollbar.Error(err, context)
		return
	}
	rollbar.Error(err)
}

// Close flushes queued items
func (rollbarReporter) Close() {
	rollbar.Close()
}
