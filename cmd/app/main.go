package main

import (
	"fmt"
	"os"

	"auto-transcriber/internal/bootstrap"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newApp builds the application from the process environment.
func newApp() (*bootstrap.App, error) {
	env, err := bootstrap.LoadEnv()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(env)
}
