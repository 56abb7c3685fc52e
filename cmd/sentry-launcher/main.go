package main

import "github.com/oshokin/plc-sentry/cmd/sentry-launcher/cmd"

func main() {
	cmd.Execute()
}
