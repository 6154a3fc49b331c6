package lock

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ValentinKolb/jsondb/cmd/util"
	"github.com/ValentinKolb/jsondb/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcLockMgr    *client.RPCLockMgr
	acquireExpire time.Duration

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Operate on a lock shard of the cache server",
		PersistentPreRunE: setupLockClient,
	}

	acquireCmd = &cobra.Command{
		Use:   "acquire [key]",
		Short: "Tries once to acquire a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	releaseCmd = &cobra.Command{
		Use:   "release [key] [ownerID]",
		Short: "Release a previously acquired lock",
		Long:  "Release a lock using the key and owner ID. The owner ID is the hex string printed by the acquire command.",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}
)

func init() {
	util.SetupRPCClientFlags(LockCommands)
	LockCommands.PersistentFlags().Int("shard", 200, util.WrapString("ID of the shard to connect to"))

	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)

	acquireCmd.Flags().DurationVar(&acquireExpire, "expire", 30*time.Second, "Release the lock automatically after this duration (0 = never)")
}

func setupLockClient(cmd *cobra.Command, _ []string) error {
	if err := util.Setup(cmd); err != nil {
		return err
	}
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	newTransport, err := util.GetTransport()
	if err != nil {
		return err
	}
	rpcLockMgr, err = client.NewRPCLockMgr(util.GetShardID(), util.GetClientConfig(), newTransport(), s)
	return err
}

func runAcquire(_ *cobra.Command, args []string) error {
	acquired, ownerID, err := rpcLockMgr.AcquireLock(args[0], uint64(acquireExpire.Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		fmt.Println("acquired=false")
		return nil
	}
	fmt.Printf("acquired=true, ownerId=%s\n", hex.EncodeToString(ownerID))
	return nil
}

func runRelease(_ *cobra.Command, args []string) error {
	ownerID, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("invalid owner ID format: %w", err)
	}
	released, err := rpcLockMgr.ReleaseLock(args[0], ownerID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	fmt.Printf("released=%v\n", released)
	return nil
}
