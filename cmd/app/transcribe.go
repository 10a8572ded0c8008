package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"auto-transcriber/internal/domain"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>...",
	Short: "Transcribe one or more media files and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		for _, arg := range args {
			path, err := filepath.Abs(arg)
			if err != nil {
				return err
			}
			jobs, err := app.Coordinator.Enqueue(path)
			if err != nil {
				return err
			}
			for _, job := range jobs {
				fmt.Printf("queued %s -> %s\n", job.SourceFile, job.OutputFile)
			}
		}

		app.Coordinator.Wait()

		failures := 0
		for _, job := range app.Coordinator.RecentJobs() {
			switch job.Status {
			case domain.JobStatusCompleted:
				fmt.Printf("done   %s\n", job.OutputFile)
			case domain.JobStatusFailed:
				failures++
				fmt.Printf("failed %s: %s\n", job.SourceFile, job.Error)
			}
		}
		if failures > 0 {
			return fmt.Errorf("%d job(s) failed", failures)
		}
		return nil
	},
}
