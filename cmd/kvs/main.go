// Command kvs is the command-line driver for the embedded key/value
// store implemented by kvs/internal/engine. It is an external
// collaborator of the core engine: argument parsing and result
// printing live here, not in the store itself.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"kvs/internal/engine"
)

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}

	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	os.Exit(1)
}

// exitError carries the process exit code a command wants once its
// RunE has already printed whatever it needs to print. Returning one
// instead of calling os.Exit directly keeps RunE funcs ordinary,
// testable functions: deferred store closes still run, and tests can
// execute a command and inspect the returned error instead of the
// process exiting out from under them.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// newRootCmd builds the set/get/rm subcommand tree, the Go analogue of
// original_source/src/bin/kvs.rs's clap App. The root command carries
// its own RunE so it stays Runnable: a bare or unrecognized invocation
// must print an error and exit non-zero, not silently print help and
// exit 0.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kvs",
		Short:         "An embedded, log-structured key/value store",
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Accept any arguments so an unrecognized subcommand reaches
		// RunE instead of failing cobra's own silent argument check.
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.ErrOrStderr(), "Invalid argument")
			return &exitError{code: 1}
		},
	}

	root.AddCommand(newSetCmd(), newGetCmd(), newRmCmd())
	return root
}

// openStore opens a Store rooted at the process's current working
// directory: the working directory is always the store directory.
func openStore() (*engine.Store, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "determine working directory")
	}
	return engine.Open(dir)
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set the value of a string key to a string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			return store.Set(args[0], args[1])
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Get the string value of a given string key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			value, found, err := store.Get(args[0])
			if err != nil {
				return err
			}
			// get never raises KeyNotFound: it prints the historical
			// "Key not found" message and still exits 0.
			out := cmd.OutOrStdout()
			if !found {
				fmt.Fprintln(out, "Key not found")
				return nil
			}
			fmt.Fprintln(out, value)
			return nil
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm KEY",
		Short: "Remove a given key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			err = store.Remove(args[0])
			if engine.IsKeyNotFound(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "Key not found")
				return &exitError{code: 1}
			}
			return err
		},
	}
}
