// Package cmd provides the CLI commands for mitmproxy.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "mitmproxy",
	Short: "TLS-intercepting proxy for local development and inspection",
	Long: `mitmproxy terminates TLS on behalf of a client, forges a
leaf certificate matching what the real upstream server presents, and
re-establishes TLS towards that upstream, so a connection can be
inspected in the clear while both ends still see a valid handshake.

It provides:

  - On-the-fly certificate forging from a local CA
  - SNI and ALPN aware TLS interception
  - Built-in DNS server for routing intercepted domains to this proxy

Start by running 'mitmproxy ca generate' to create a local CA, then
'mitmproxy serve' to run the proxy.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("mitmproxy version {{.Version}}\ncommit: %s\nbuilt: %s\n", Commit, BuildDate))
}
