package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "quartz",
	Short: "Geometry-aware partitioned memory store",
	Long:  "Quartz stores memories on golden-spiral partitions, decays what goes unread, and crystallizes what matters. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(partitionsCmd)
	rootCmd.AddCommand(crystalsCmd)
}
