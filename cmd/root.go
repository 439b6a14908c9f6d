package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/3kwa/goingnats/cmd/gen"
)

var rootCmd = &cobra.Command{
	Use:   "goingnats",
	Short: "A no frills NATS client",
	Long: `goingnats is a no frills NATS client.

It publishes, subscribes and requests over the plain NATS text
protocol, and ships a small embedded broker for local development.
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(ServeCmd)
	rootCmd.AddCommand(DemoCmd)
	rootCmd.AddCommand(PubCmd)
	rootCmd.AddCommand(SubCmd)
	rootCmd.AddCommand(ReqCmd)
	rootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
