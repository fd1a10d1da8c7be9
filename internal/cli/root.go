// Package cli is the cronbot command line: `serve` runs the scheduler,
// `jobs` talks to a running instance over HTTP and `parse` checks
// schedule expressions offline.
package cli

import (
	"os"
	"strings"

	"cronbot/internal/config"

	"github.com/spf13/cobra"
)

// AddrEnv overrides the default --addr.
const AddrEnv = "CRONBOT_ADDR"

type rootFlags struct {
	config string
	addr   string
}

func NewRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "cronbot",
		Short:         "Persistent reminder and job scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.config, "config", "", "path to config file (json or yaml); defaults are used when empty")
	root.PersistentFlags().StringVar(&f.addr, "addr", defaultAddr(), "address of a running cronbot (jobs commands)")

	root.AddCommand(
		serveCmd(f),
		jobsCmd(f),
		parseCmd(f),
	)
	return root
}

func defaultAddr() string {
	if v := strings.TrimSpace(os.Getenv(AddrEnv)); v != "" {
		return v
	}
	return config.DefaultAddr
}
