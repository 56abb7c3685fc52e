package main

import "github.com/oshokin/plc-sentry/cmd/sentry-packager/cmd"

func main() {
	cmd.Execute()
}
