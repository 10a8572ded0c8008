package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "auto-transcriber",
	Short: "Watches folders for new media files and transcribes them",
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(statusCmd)
}
