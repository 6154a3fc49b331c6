package doc

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/jsondb/lib/jsondb"
	"github.com/spf13/cobra"
)

var (
	bypassCache bool
	recursive   bool

	getCmd = &cobra.Command{
		Use:   "get [path]",
		Short: "Prints a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, found, err := store.GetRaw(args[0], callOptions()...)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("document %s not found", args[0])
			}
			out, err := jsondb.Encode(raw)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	commitCmd = &cobra.Command{
		Use:   "commit [path] [json|-]",
		Short: "Writes a document, reading it from stdin if the value is - or missing",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) == 2 && args[1] != "-" {
				data = []byte(args[1])
			} else {
				var err error
				if data, err = io.ReadAll(os.Stdin); err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
			}
			if !json.Valid(data) {
				return fmt.Errorf("value is not valid JSON")
			}
			if err := store.Commit(args[0], json.RawMessage(data), callOptions()...); err != nil {
				return err
			}
			fmt.Println("committed", args[0])
			return nil
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [path]",
		Short: "Deletes a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [path]",
		Short: "Checks if a document exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := store.Exists(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("path=%s, exists=%t\n", args[0], ok)
			return nil
		},
	}
	lsCmd = &cobra.Command{
		Use:   "ls [dir]",
		Short: "Lists the documents of a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			names, err := store.ListDocs(dir, recursive)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
)

func init() {
	getCmd.Flags().BoolVar(&bypassCache, "bypass-cache", false, "Read from disk and leave the cache untouched")
	commitCmd.Flags().BoolVar(&bypassCache, "bypass-cache", false, "Evict the cache entry instead of refreshing it")
	lsCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Include documents of sub directories")
}

func callOptions() []jsondb.CallOption {
	if bypassCache {
		return []jsondb.CallOption{jsondb.NoCache()}
	}
	return nil
}
