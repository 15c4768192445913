package commands

import (
	"context"
	"fmt"

	"docintake/tui"
	"docintake/types"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// Job flag names
const (
	flagOwnerID    = "owner-id"
	flagDocumentID = "document-id"
	flagFileURL    = "file-url"
	flagFileName   = "file-name"
	flagDocType    = "doc-type"
	flagNoRedact   = "no-redact"
	flagWatch      = "watch"
	flagKeepOpen   = "keep-open"
)

func (a *app) submitCmd() *cobra.Command {
	var (
		req      types.JobRequest
		docType  string
		noRedact bool
		watch    bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a document for extraction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.DocType = types.DocType(docType)
			if cmd.Flags().Changed(flagNoRedact) {
				redact := !noRedact
				req.Redact = &redact
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			sub, err := a.api.SubmitJob(ctx, req)
			if err != nil {
				return fmt.Errorf("submit job: %w", err)
			}
			if watch {
				return a.runWatcher(cmd, []string{sub.JobID}, true)
			}
			return printJSON(cmd.OutOrStdout(), sub)
		},
	}

	cmd.Flags().StringVarP(&req.OwnerID, flagOwnerID, "o", "", "Owner of the document")
	cmd.Flags().StringVar(&req.DocumentID, flagDocumentID, "", "Stored document UUID")
	cmd.Flags().StringVar(&req.FileURL, flagFileURL, "", "URL the processor downloads the document from")
	cmd.Flags().StringVar(&req.FileName, flagFileName, "", "Original file name")
	cmd.Flags().StringVarP(&docType, flagDocType, "t", string(types.DocTypeReceipt), "receipt or bank_statement")
	cmd.Flags().BoolVar(&noRedact, flagNoRedact, false, "Disable PII redaction")
	cmd.Flags().BoolVarP(&watch, flagWatch, "w", false, "Watch the job until it finishes")
	_ = cmd.MarkFlagRequired(flagOwnerID)
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's state, progress and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			st, err := a.api.JobStatus(ctx, args[0])
			if err != nil {
				return fmt.Errorf("job status: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var keepOpen bool
	cmd := &cobra.Command{
		Use:   "watch <job-id>...",
		Short: "Watch jobs and queue depth in the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatcher(cmd, args, !keepOpen)
		},
	}
	cmd.Flags().BoolVar(&keepOpen, flagKeepOpen, false, "Stay open after every job finishes")
	return cmd
}

func (a *app) runWatcher(cmd *cobra.Command, ids []string, exitWhenDone bool) error {
	program := tea.NewProgram(
		tui.NewModel(a.api, ids, exitWhenDone),
		tea.WithContext(cmd.Context()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	_, err := program.Run()
	return err
}
