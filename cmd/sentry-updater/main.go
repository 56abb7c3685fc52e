package main

import "github.com/oshokin/plc-sentry/cmd/sentry-updater/cmd"

func main() {
	cmd.Execute()
}
