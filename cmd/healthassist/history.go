// Copyright 2024 AI Health Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/ai-health-assistant/internal/config"
	"github.com/your-org/ai-health-assistant/internal/records"
)

func newHistoryCmd() *cobra.Command {
	var (
		userID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's recent records from the SQLite store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runHistory(cmd, cfg.Records, userID, limit)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum records to list")
	return cmd
}

// runHistory only reads the SQLite store; other backends are rejected before
// anything is opened so no database file is created.
func runHistory(cmd *cobra.Command, cfg records.Config, userID string, limit int) error {
	if cfg.StorageType != records.StorageTypeSQLite {
		return fmt.Errorf("history requires records.storage_type %q, configured storage is %q",
			records.StorageTypeSQLite, cfg.StorageType)
	}
	return printHistory(cmd, cfg.DBPath, userID, limit)
}

func printHistory(cmd *cobra.Command, dbPath, userID string, limit int) error {
	store, err := records.NewSQLiteStore(dbPath, zap.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	recs, err := store.Recent(ctx, userID, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tTYPE\tTITLE\tSOURCE\tEMERGENCY")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.RecordType, rec.Title, rec.Source, rec.IsEmergency)
	}
	return w.Flush()
}
