// Package common provides the shared logging infrastructure for the CI
// Review services. The review pipeline runs both as a long-lived HTTP
// service and as a one-shot CLI, and in both modes its log output is
// consumed by scripts and container log collectors. The package therefore
// routes log output by severity: error entries go to stderr where
// supervisors and shell pipelines expect them, everything else goes to
// stdout.
//
// The implementation is built on logrus. A single global Logger instance
// is configured at import time so every package in the module logs with
// the same formatting and routing without extra wiring.
//
// Output Routing:
//
//	Error-level entries are written to stderr so that orchestration
//	platforms and calling scripts can alert on or capture them
//	separately. Info, warning and debug entries are written to stdout
//	for normal log processing. The split happens on the final formatted
//	output, so it works with both the text and the JSON formatter.
//
// Usage:
//
//	common.Logger.WithFields(logrus.Fields{
//	    "artifact": name,
//	}).Info("artifact reviewed")
//
// The server entrypoint applies its configuration to the global instance
// through ConfigureLogger; short-lived commands that want a quieter or
// differently formatted logger derive their own through NewLogger.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log output by severity. It inspects each
// write for the logrus error-level marker and sends matching entries to
// stderr while everything else goes to stdout.
//
// The detection is a plain byte search for "level=error", which both the
// text and JSON formatters emit for error entries. No parsing or regular
// expressions are involved, so the splitter adds no measurable overhead
// even under chatty debug logging.
//
// The splitter is stateless and safe for concurrent use; logrus serializes
// writes to it internally.
//
// Example:
//
//	logger := logrus.New()
//	logger.SetOutput(&OutputSplitter{})
//
//	logger.Info("goes to stdout")
//	logger.Error("goes to stderr")
type OutputSplitter struct{}

// Write implements io.Writer. Entries containing the error-level marker
// are written to stderr, all other entries to stdout. Write errors from
// the underlying stream are returned to the caller unchanged.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the global logger used across the CI Review module. It is
// pre-wired with the OutputSplitter so stream separation works without any
// per-service setup.
//
// The defaults (text format, info level) suit interactive CLI use.
// The server entrypoint reconfigures format and level from the loaded
// configuration through ConfigureLogger before serving requests.
//
// Packages accept an optional *logrus.Logger and fall back to this
// instance when given nil, which keeps tests quiet (they inject a discard
// logger) while production paths share one consistent output.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
