package doc

import (
	"github.com/ValentinKolb/jsondb/cmd/util"
	"github.com/ValentinKolb/jsondb/lib/cache"
	"github.com/ValentinKolb/jsondb/lib/jsondb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	store       *jsondb.Store
	cacheClient *cache.Client

	// DocCommands represents the document command group
	DocCommands = &cobra.Command{
		Use:                "doc",
		Short:              "Read and write documents",
		Long:               "Read and write the JSON documents below --db-root. Document paths are relative to the root and carry no .json extension (e.g. users/alice).",
		PersistentPreRunE:  openStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	util.SetupCacheFlags(DocCommands)
	DocCommands.PersistentFlags().String("db-root", "db", util.WrapString("Directory holding the documents"))
	DocCommands.PersistentFlags().Duration("fault-window", 0, util.WrapString("Minimum time between two reported decode faults (0 = 2m)"))

	DocCommands.AddCommand(getCmd)
	DocCommands.AddCommand(commitCmd)
	DocCommands.AddCommand(deleteCmd)
	DocCommands.AddCommand(existsCmd)
	DocCommands.AddCommand(lsCmd)
}

// openStore creates the cache client and the store for the subcommand
func openStore(cmd *cobra.Command, _ []string) error {
	if err := util.Setup(cmd); err != nil {
		return err
	}

	c, err := util.NewCacheClient()
	if err != nil {
		return err
	}

	opts := jsondb.DefaultOptions(viper.GetString("db-root"))
	if ttl := viper.GetDuration("cache-ttl"); ttl > 0 {
		opts.CacheTTL = ttl
	}
	if d := viper.GetDuration("lock-timeout"); d > 0 {
		opts.LockTimeout = d
	}
	if d := viper.GetDuration("lock-expire"); d > 0 {
		opts.LockExpire = d
	}
	if d := viper.GetDuration("fault-window"); d > 0 {
		opts.FaultWindow = d
	}
	opts.OnFault = func(err error) {
		jsondb.Logger.Errorf("fault report: %v", err)
	}

	s, err := jsondb.Open(opts, c)
	if err != nil {
		_ = c.Close()
		return err
	}
	store, cacheClient = s, c
	return nil
}

func closeStore(_ *cobra.Command, _ []string) error {
	if cacheClient == nil {
		return nil
	}
	return cacheClient.Close()
}
