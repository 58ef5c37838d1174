package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"otpmml/internal/registry"

	"github.com/spf13/cobra"
)

var registryOutput string

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the persistent model registry",
	Long: `Store versioned PMML documents in the registry under REGISTRY_PATH.

Each add creates a new version of the entry unless the document is
identical to the latest one; rollback drops the latest version.`,
}

var registryAddCmd = &cobra.Command{
	Use:   "add <name> <pmml>",
	Short: "Add a PMML document as a new version of an entry",
	Args:  cobra.ExactArgs(2),
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[1], err)
		}
		mv, err := reg.Add(args[0], data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %d: %s\n", mv.Name, mv.Version, strings.Join(mv.Models, ", "))
		return nil
	}),
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the latest version of every entry",
	Args:  cobra.NoArgs,
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		list, err := reg.List()
		if err != nil {
			return err
		}
		return printVersions(cmd, list)
	}),
}

var registryVersionsCmd = &cobra.Command{
	Use:   "versions <name>",
	Short: "List every version of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		versions, err := reg.Versions(args[0])
		if err != nil {
			return err
		}
		return printVersions(cmd, versions)
	}),
}

var registryGetCmd = &cobra.Command{
	Use:   "get <name> [version]",
	Short: "Write the document of an entry to stdout or --output",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 2 {
			v, perr := strconv.Atoi(args[1])
			if perr != nil {
				return fmt.Errorf("invalid version %q: %w", args[1], perr)
			}
			_, data, err = reg.GetVersion(args[0], v)
		} else {
			_, data, err = reg.Get(args[0])
		}
		if err != nil {
			return err
		}
		if registryOutput != "" {
			return os.WriteFile(registryOutput, data, 0o644)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}),
}

var registryRollbackCmd = &cobra.Command{
	Use:   "rollback <name>",
	Short: "Drop the latest version of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		mv, err := reg.Rollback(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is back to version %d\n", mv.Name, mv.Version)
		return nil
	}),
}

var registryRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete every version of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: withRegistry(func(cmd *cobra.Command, reg *registry.Registry, args []string) error {
		if err := reg.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", args[0])
		return nil
	}),
}

func init() {
	registryGetCmd.Flags().StringVarP(&registryOutput, "output", "o", "", "Write the document to this file")

	registryCmd.AddCommand(registryAddCmd)
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryVersionsCmd)
	registryCmd.AddCommand(registryGetCmd)
	registryCmd.AddCommand(registryRollbackCmd)
	registryCmd.AddCommand(registryRmCmd)
}

func withRegistry(run func(cmd *cobra.Command, reg *registry.Registry, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()
		return run(cmd, reg, args)
	}
}

func printVersions(cmd *cobra.Command, versions []registry.ModelVersion) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tKINDS\tMODELS\tSIZE\tADDED\tSHA256")
	for _, mv := range versions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\t%s\n", mv.Name, mv.Version,
			strings.Join(mv.Kinds, ","), strings.Join(mv.Models, ","), mv.Size,
			mv.AddedAt.Format(time.RFC3339), mv.SHA256[:12])
	}
	return tw.Flush()
}
