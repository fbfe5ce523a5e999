package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hoppxi/ddclight/internal/manager"
)

var Version = "0.1.0"

// offline commands do not need a running daemon.
var offline = map[string]bool{
	"ddclight": true,
	"setup":    true,
	"start":    true,
	"help":     true,
}

var rootCmd = &cobra.Command{
	Use:     "ddclight",
	Version: Version,
	Short:   "Brightness control for external monitors over DDC/CI",
	Long:    "ddclight runs a daemon that drives monitor brightness through ddcutil and answers requests over a unix socket and D-Bus",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if offline[cmd.Name()] {
			return
		}

		conn, err := manager.ConnectIPC()
		if err != nil {
			fmt.Println("Error:", err)
			fmt.Println("Hint: run `ddclight start` first")
			os.Exit(1)
		}
		conn.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(detectCmd)
}
