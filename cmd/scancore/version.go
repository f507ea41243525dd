package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scancore/internal/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scancore %s\n", version.GetFullVersion())
		fmt.Printf("Build Time: %s\n", version.BuildTime)
		fmt.Printf("Go Version: %s\n", version.GoVersion)
	},
}
