package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var setupForce bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision the Python runtime and ML environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if !setupForce && !app.Provisioner.NeedsSetup(ctx) {
			fmt.Println("environment already provisioned")
			return nil
		}

		done := make(chan bool, 1)
		if err := app.Provisioner.Start(func(ok bool) { done <- ok }); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			app.Provisioner.Cancel()
			<-done
			return ctx.Err()
		case ok := <-done:
			if !ok {
				return fmt.Errorf("setup failed: %s", app.Provisioner.State().Status)
			}
			fmt.Println("environment ready")
			return nil
		}
	},
}

func init() {
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "Provision even when the environment looks healthy")
}
