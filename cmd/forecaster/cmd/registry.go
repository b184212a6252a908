package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/forecaster/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and promote model snapshots",
	Long: `Work with the snapshot registry written by train.

Subcommands:
  list     - List snapshots, newest first
  show     - Print a snapshot's metadata
  activate - Make a snapshot the active one`,
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots",
	RunE:  runRegistryList,
}

var registryShowCmd = &cobra.Command{
	Use:   "show [snapshot]",
	Short: "Print snapshot metadata (default: active)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRegistryShow,
}

var registryActivateCmd = &cobra.Command{
	Use:   "activate <snapshot>",
	Short: "Promote a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegistryActivate,
}

func init() {
	rootCmd.AddCommand(registryCmd)
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryShowCmd)
	registryCmd.AddCommand(registryActivateCmd)
}

func openRegistry() (*env, *registry.Registry, error) {
	e, err := newEnv()
	if err != nil {
		return nil, nil, err
	}
	return e, registry.Open(e.cfg.Registry.Root, e.log), nil
}

func runRegistryList(cmd *cobra.Command, args []string) error {
	e, reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer e.Close()
	entries, err := reg.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No snapshots found")
		return nil
	}
	active, _ := reg.Active()

	fmt.Printf("  %-17s %-5s %8s %8s  %s\n", "SNAPSHOT", "MODEL", "SAMPLES", "CV AUC", "SYMBOLS")
	for _, en := range entries {
		mark := " "
		if en.SnapshotDir == active {
			mark = "*"
		}
		auc := "-"
		if en.CVMeanAUC != nil {
			auc = fmt.Sprintf("%.4f", *en.CVMeanAUC)
		}
		fmt.Printf("%s %-17s %-5s %8d %8s  %d\n", mark, en.SnapshotDir, en.ModelType, en.Samples, auc, len(en.Symbols))
	}
	return nil
}

func runRegistryShow(cmd *cobra.Command, args []string) error {
	e, reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer e.Close()
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	m, err := reg.Show(name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func runRegistryActivate(cmd *cobra.Command, args []string) error {
	e, reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer e.Close()
	if err := reg.Activate(args[0]); err != nil {
		return err
	}
	fmt.Printf("✓ Active snapshot: %s\n", args[0])
	return nil
}
