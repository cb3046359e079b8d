package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"docqa/internal/repository"
)

func reingestCMD(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "reingest <document_id>",
		Short: "Re-queue a finished or failed document for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documentID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || documentID == 0 {
				return fmt.Errorf("invalid document id %q", args[0])
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			app, err := newApp(ctx, load)
			if err != nil {
				return err
			}
			defer closeApp(app)

			doc, err := repository.NewDocumentRepository(app.MySQL).GetByID(ctx, uint(documentID))
			if err != nil {
				return err
			}
			doc, err = app.Documents.Reingest(ctx, doc.UserID, doc.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "document %d queued (status=%s)\n", doc.ID, doc.Status)
			return nil
		},
	}
}
