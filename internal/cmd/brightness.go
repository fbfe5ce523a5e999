package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [bus]",
	Short: "Print the brightness of every display, or of one bus",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		payload, err := request("SNAPSHOT")
		if err != nil {
			fail(err)
		}
		var snap map[int]int
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			fail(fmt.Errorf("bad snapshot: %w", err))
		}

		if len(args) == 1 {
			bus, err := strconv.Atoi(args[0])
			if err != nil {
				fail(fmt.Errorf("invalid bus %q", args[0]))
			}
			pct, ok := snap[bus]
			if !ok {
				fail(fmt.Errorf("unknown bus %d", bus))
			}
			fmt.Println(formatPercent(pct))
			return
		}

		fmt.Print(formatSnapshot(snap))
	},
}

var setCmd = &cobra.Command{
	Use:   "set <bus|all> <percent>",
	Short: "Set brightness immediately",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := request("SET " + args[0] + " " + args[1]); err != nil {
			fail(err)
		}
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <bus|all> <percent>",
	Short: "Set brightness after the debounce delay (for sliders and key repeat)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := request("PUSH " + args[0] + " " + args[1]); err != nil {
			fail(err)
		}
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Apply pending pushed values now",
	Run: func(cmd *cobra.Command, args []string) {
		response, err := request("FLUSH")
		if err != nil {
			fail(err)
		}
		fmt.Println(response)
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Re-run display detection",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := request("DETECT"); err != nil {
			fail(err)
		}
		buses, err := request("BUSES")
		if err != nil {
			fail(err)
		}
		fmt.Printf("Known buses: %s\n", buses)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the daemon's per-bus state",
	Run: func(cmd *cobra.Command, args []string) {
		payload, err := request("STATUS")
		if err != nil {
			fail(err)
		}
		if raw, _ := cmd.Flags().GetBool("json"); raw {
			fmt.Println(payload)
			return
		}

		var st map[string]any
		if err := json.Unmarshal([]byte(payload), &st); err != nil {
			fail(fmt.Errorf("bad status: %w", err))
		}
		pretty, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(pretty))
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print the raw JSON reply")
}

func formatPercent(pct int) string {
	if pct < 0 {
		return "unknown"
	}
	return strconv.Itoa(pct) + "%"
}

func formatSnapshot(snap map[int]int) string {
	ids := make([]int, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out string
	for _, id := range ids {
		out += fmt.Sprintf("bus %d: %s\n", id, formatPercent(snap[id]))
	}
	return out
}
