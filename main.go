// Package main is the entry point of the cireview binary, the review
// service for SAP Integration Suite artifacts.
//
// The binary has two modes of operation:
//   - Running without a subcommand starts the HTTP API server with
//     JWT-protected review, job tracking and tenant browsing endpoints.
//   - The analyze subcommand reviews local artifact files and prints a
//     markdown or JSON report, exiting non-zero when the policy fails,
//     which makes it suitable as a CI pipeline gate.
//
// Example Usage:
//
//	cireview --config /etc/cireview/config.yaml
//	cireview analyze build/artifacts/*.zip --output review.md
//	cireview analyze flow.xml --json
package main

import (
	"log"

	"cireview.evalgo.org/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
