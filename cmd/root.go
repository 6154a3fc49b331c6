package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/jsondb/cmd/doc"
	"github.com/ValentinKolb/jsondb/cmd/kv"
	"github.com/ValentinKolb/jsondb/cmd/lock"
	"github.com/ValentinKolb/jsondb/cmd/serve"
	"github.com/ValentinKolb/jsondb/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "jsondb",
		Short: "flat-file JSON document store with a cache server",
		Long: fmt.Sprintf(`jsondb (v%s)

Stores JSON documents as files below a root directory. Reads are served from
a shared cache server when one is reachable, writes are serialized with
leases so several processes can work on the same directory.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of jsondb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("jsondb v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(doc.DocCommands)
	RootCmd.AddCommand(versionCmd)

	flags := RootCmd.PersistentFlags()
	flags.String("serializer", "binary", util.WrapString("serializer to use (json, gob, binary)"))
	flags.String("transport", "tcp", util.WrapString("transport to use (http, tcp, unix)"))
	flags.String("log-level", "info", util.WrapString("log level (debug, info, warn, error)"))
}

// Execute runs the root command. Called once by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
