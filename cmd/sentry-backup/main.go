package main

import "github.com/oshokin/plc-sentry/cmd/sentry-backup/cmd"

func main() {
	cmd.Execute()
}
