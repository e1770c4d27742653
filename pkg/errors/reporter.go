package errors

import (
	"os"

	"github.com/certifi/gocertifi"
	"github.com/getsentry/sentry-go"
	"moff.io/wallet-bridge/pkg/log"
)

var (
	reporters []Reporter
)

// Set this env to suppress reporting entirely, e.g. on developer machines.
const debugMode = "DEBUG"

func init() {
	reporters = make([]Reporter, 0)
}

func report(err error) {
	if reporters == nil || err == nil {
		return
	}
	if os.Getenv(debugMode) != "" {
		return
	}
	for _, r := range reporters {
		r.Report(err)
	}
}

// Reporter submits noteworthy errors to an external sink.
type Reporter interface {
	Report(error)
}

type sentryReporter struct {
}

func (s *sentryReporter) Report(err error) {
	sentry.CaptureException(err)
}

// NewSentryReporter
// Initializes the sentry error reporter. Errors built with the *AndReport
// constructors are captured to the configured sentry project.
// Reporting is disabled while the DEBUG env is set.
func NewSentryReporter(sentryDSN string) error {
	if sentryDSN == "" {
		log.Warn("empty DSN found, skipping sentry reporter initialization.")
		return nil
	}
	sentryClientOptions := sentry.ClientOptions{
		Dsn: sentryDSN,
	}

	rootCAs, err := gocertifi.CACerts()
	if err != nil {
		return Wrap(err, "init sentry CA")
	}

	sentryClientOptions.CaCerts = rootCAs
	if err := sentry.Init(sentryClientOptions); err != nil {
		return Wrap(err, "init sentry")
	}
	log.Info("sentry error reporter initialized.")
	reporters = append(reporters, &sentryReporter{})
	return nil
}
