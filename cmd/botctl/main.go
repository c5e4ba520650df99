// Command botctl bootstraps the chat adapters, the conversation
// demultiplexer, and the ops dashboard from a YAML config file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "botctl",
		Short: "Run and operate the canoe-go conversation engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: searches standard locations)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newLinkCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
