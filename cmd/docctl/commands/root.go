package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"docintake/client"

	"github.com/spf13/cobra"
)

// flag names
const (
	flagServerAddress = "server-address"
	flagTimeout       = "timeout"
)

// environment variable names
const (
	envServerAddress = "DOCINTAKE_SERVER_ADDRESS"
)

const defaultServerAddress = "http://localhost:8080"

// app holds state shared by every subcommand.
type app struct {
	serverAddress string
	timeout       time.Duration
	api           *client.Client
}

// NewRootCmd builds the docctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "docctl",
		Short:         "docctl - command line interface for the docintake API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Flag > env var > default
			if !cmd.Flags().Changed(flagServerAddress) {
				if env := os.Getenv(envServerAddress); env != "" {
					a.serverAddress = env
				}
			}
			if a.serverAddress == "" {
				return fmt.Errorf("server address cannot be empty")
			}
			a.api = client.NewClient(a.serverAddress)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.serverAddress, flagServerAddress, "s", defaultServerAddress, "Address of the docintake API (env: "+envServerAddress+")")
	root.PersistentFlags().DurationVar(&a.timeout, flagTimeout, 30*time.Second, "Request timeout")

	root.AddCommand(
		a.submitCmd(),
		a.statusCmd(),
		a.watchCmd(),
		a.statsCmd(),
		a.pauseCmd(),
		a.resumeCmd(),
		a.cleanCmd(),
		a.healthCmd(),
	)
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
