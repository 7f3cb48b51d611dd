package main

import (
	"github.com/spf13/cobra"

	"github.com/example/wayfinder/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live campaign dashboard",
	Long:  `Opens a terminal dashboard that polls the daemon for routes and progress.`,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&userLevel, "user-level", "", "Restrict to one user level")
}

func runWatch(cmd *cobra.Command, args []string) error {
	return tui.Run(apiAddr, userLevel)
}
