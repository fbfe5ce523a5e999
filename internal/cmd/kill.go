package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Stop the daemon",
	Run: func(cmd *cobra.Command, args []string) {
		response, err := request("STOP")
		if err != nil {
			fail(err)
		}
		fmt.Printf("Server response: %s\n", response)
	},
}
