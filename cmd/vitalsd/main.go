// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command vitalsd runs the health-signal processing pipeline: the HTTP
// API, the forecast worker, the baseline/correlation schedulers, or a
// one-shot catalog reload, selected by subcommand.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/flomentum/vitalscore/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("vitalsd: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return config.Load()
	}
}
