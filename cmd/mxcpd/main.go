// Command mxcpd serves user-declared endpoints over MCP (spec §1). It
// wires the endpoint loader, registry, SQL session, policy/executor
// pipeline, audit writer, reload controller, and admin surface into one
// process behind a single cobra root command.
package main

import (
	"fmt"
	"os"

	"github.com/raw-labs/mxcp/cmd/mxcpd/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
