package main

import "github.com/oshokin/plc-sentry/cmd/sentry-watcher/cmd"

func main() {
	cmd.Execute()
}
