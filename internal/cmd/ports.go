package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Inspect and repair local port allocations",
}

var portsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List allocated local ports",
	RunE:  runPortsList,
}

var portsReleaseCmd = &cobra.Command{
	Use:   "release <instance-id>",
	Short: "Release the port allocated to an instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortsRelease,
}

var portsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Release allocations whose instance has no live tunnel",
	RunE:  runPortsPrune,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.AddCommand(portsListCmd, portsReleaseCmd, portsPruneCmd)
}

func runPortsList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := signalContext()
	defer cancel()

	held, err := rt.portAllocator().List(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(held) == 0 {
		fmt.Fprintln(out, "No allocated ports.")
		return nil
	}

	ids := make([]string, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return held[ids[i]] < held[ids[j]] })

	fmt.Fprintf(out, "%-14s %s\n", "INSTANCE", "PORT")
	for _, id := range ids {
		fmt.Fprintf(out, "%-14s %d\n", id, held[id])
	}
	return nil
}

func runPortsRelease(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := rt.portAllocator().Release(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "released port for instance %s\n", args[0])
	return nil
}

func runPortsPrune(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := signalContext()
	defer cancel()

	// Listing tunnels prunes dead ones first, so the surviving instance IDs
	// are exactly the allocations worth keeping.
	records, err := rt.tunnelManager().List(ctx)
	if err != nil {
		return err
	}
	active := make([]string, 0, len(records))
	for _, rec := range records {
		active = append(active, rec.InstanceID)
	}

	pruned, err := rt.portAllocator().PruneStale(ctx, active)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(pruned) == 0 {
		fmt.Fprintln(out, "No stale allocations.")
		return nil
	}
	for _, id := range pruned {
		fmt.Fprintf(out, "released stale allocation for instance %s\n", id)
	}
	return nil
}
