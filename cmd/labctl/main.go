// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command labctl is a small interactive client for the lab upload
// pipeline: it prompts for a user id and PDF path with huh, uploads it
// to a running vitalsd, then polls the job's steps[] with a bubbletea
// progress view until the job reaches a terminal status.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("labctl: %v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "labctl",
	Short: "upload a lab PDF and watch its processing progress",
}

var serverAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://localhost:8090", "vitalsd base URL")
	rootCmd.AddCommand(uploadCmd, watchCmd)
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "prompt for a user id and PDF path, upload it, then watch progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, path, err := promptUploadForm()
		if err != nil {
			return err
		}
		job, err := uploadFile(cmd.Context(), serverAddr, user, path)
		if err != nil {
			return err
		}
		fmt.Printf("uploaded, job id %s\n", job.Id)
		return runProgress(serverAddr, job.Id)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [jobId]",
	Short: "watch an already-running job's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProgress(serverAddr, args[0])
	},
}

func init() {
	if os.Getenv("LABCTL_ADDR") != "" {
		serverAddr = os.Getenv("LABCTL_ADDR")
	}
}
