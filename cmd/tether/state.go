package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/tether-go/tether/internal/errors"
	"github.com/tether-go/tether/pkg/persist"
)

func stateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit persisted state",
		Long: `Read, write, and delete keys in the configured state backend.

Values are stored as JSON, exactly the bytes a persistent store with
the default codec would write. Editing a key while a server is
running is picked up live by backends that support watching (file,
memory).

Examples:
  tether state list
  tether state get demo/counter
  tether state set demo/counter 42
  tether state del demo/counter`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to tether.json (default: search upward from cwd)")

	cmd.AddCommand(
		stateGetCmd(&configPath),
		stateSetCmd(&configPath),
		stateDelCmd(&configPath),
		stateListCmd(&configPath),
	)

	return cmd
}

// withStateBackend opens the configured backend, runs fn against it
// with a bounded context, and closes it again.
func withStateBackend(configPath string, fn func(ctx context.Context, b persist.Backend) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return fn(ctx, backend)
}

func stateGetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the stored value for a key",
		Args:  exactKeyArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateBackend(*configPath, func(ctx context.Context, b persist.Backend) error {
				data, err := b.Read(ctx, args[0])
				if err == persist.ErrNotFound {
					return errors.New("E104").WithDetail("Key: " + args[0])
				}
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			})
		},
	}
}

func stateSetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <json-value>",
		Short: "Write a value for a key",
		Args:  exactKeyArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if !json.Valid([]byte(value)) {
				return errors.New("E303").
					WithDetail("Got: " + value).
					WithSuggestion(`Quote strings: tether state set greeting '"hello"'`)
			}
			return withStateBackend(*configPath, func(ctx context.Context, b persist.Backend) error {
				if err := b.Write(ctx, key, []byte(value)); err != nil {
					return err
				}
				success("%s = %s", key, value)
				return nil
			})
		},
	}
}

func stateDelCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "del <key>",
		Short: "Delete a key",
		Args:  exactKeyArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateBackend(*configPath, func(ctx context.Context, b persist.Backend) error {
				if err := b.Delete(ctx, args[0]); err != nil {
					return err
				}
				success("deleted %s", args[0])
				return nil
			})
		},
	}
}

func stateListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateBackend(*configPath, func(ctx context.Context, b persist.Backend) error {
				lister, ok := b.(persist.Lister)
				if !ok {
					return errors.Newf(errors.CategoryCLI,
						"this backend cannot enumerate keys")
				}
				keys, err := lister.Keys(ctx)
				if err != nil {
					return err
				}
				if len(keys) == 0 {
					info("no keys stored")
					return nil
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintln(os.Stdout, k)
				}
				return nil
			})
		},
	}
}

// exactKeyArgs is cobra.ExactArgs with the CLI's coded error for a
// missing key.
func exactKeyArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.New("E301").
				WithDetail(fmt.Sprintf("%s takes %d argument(s), got %d", cmd.Name(), n, len(args)))
		}
		return nil
	}
}
