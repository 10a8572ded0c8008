package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"auto-transcriber/internal/domain"
)

var statusHistoryLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show environment checks and recent transcription history",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		report := app.Checker.Run()
		fmt.Println("environment:")
		for _, item := range report.Items {
			marker := "ok  "
			if item.Status == domain.DiagnosticStatusFail {
				marker = "FAIL"
			}
			fmt.Printf("  %s %-20s %s\n", marker, item.Name, item.Message)
		}

		jobs, err := app.History.Recent(statusHistoryLimit)
		if err != nil {
			return err
		}
		fmt.Println("recent jobs:")
		if len(jobs) == 0 {
			fmt.Println("  none")
			return nil
		}
		for _, job := range jobs {
			fmt.Printf("  %-9s %s", job.Status, job.SourceFile)
			if job.Error != "" {
				fmt.Printf(" (%s)", job.Error)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusHistoryLimit, "limit", 20, "Number of history entries to show")
}
