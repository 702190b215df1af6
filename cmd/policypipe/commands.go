package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	appconfig "github.com/c360studio/policypipe/config"
	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/pipeline"
	"github.com/c360studio/policypipe/storage"
)

// migrateCmd applies the database schema.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := appconfig.NewLoader(nil).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			store, err := storage.New(ctx, appCfg.Postgres)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			fmt.Println("Migrations applied")
			return nil
		},
	}
}

// ingestCmd registers a PDF and requests a pipeline run for it.
func ingestCmd() *cobra.Command {
	var product string

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Register a document and request processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if !strings.EqualFold(filepath.Ext(path), ".pdf") {
				return fmt.Errorf("only PDF documents are supported: %s", path)
			}

			appCfg, err := appconfig.NewLoader(nil).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			store, err := storage.New(ctx, appCfg.Postgres)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			doc := &document.Document{
				ID:       document.NewDocumentID(),
				Name:     filepath.Base(path),
				FilePath: path,
				MimeType: "application/pdf",
				Status:   document.StatusPending,
			}
			if err := store.CreateDocument(ctx, doc); err != nil {
				return fmt.Errorf("register document: %w", err)
			}

			nc, err := connectCoreNATS(appCfg)
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("create JetStream context: %w", err)
			}

			req := pipeline.RunRequest{DocumentID: doc.ID, Product: product}
			data, err := json.Marshal(req)
			if err != nil {
				return fmt.Errorf("marshal run request: %w", err)
			}
			if _, err := js.Publish(ctx, pipeline.SubjectRunRequest, data); err != nil {
				return fmt.Errorf("publish run request: %w", err)
			}

			fmt.Printf("Document %s registered, run requested (product %s)\n", doc.ID, product)
			return nil
		},
	}

	cmd.Flags().StringVar(&product, "product", "document-processing", "Product workflow to apply")
	return cmd
}

// statusCmd queries run status over NATS request/reply.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [workflow-id]",
		Short: "Show run status (all runs when no workflow ID is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := appconfig.NewLoader(nil).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			nc, err := connectCoreNATS(appCfg)
			if err != nil {
				return err
			}
			defer nc.Close()

			if len(args) == 1 {
				return printRunStatus(nc, args[0])
			}
			return printRunList(nc)
		},
	}
}

func printRunStatus(nc *nats.Conn, workflowID string) error {
	req, err := json.Marshal(pipeline.StatusRequest{WorkflowID: workflowID})
	if err != nil {
		return err
	}

	msg, err := nc.Request(pipeline.SubjectStatusGet, req, 10*time.Second)
	if err != nil {
		return fmt.Errorf("status query: %w", err)
	}

	var apiErr pipeline.StatusError
	if err := json.Unmarshal(msg.Data, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s", apiErr.Error)
	}

	var state storage.RunState
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		return fmt.Errorf("parse status reply: %w", err)
	}

	fmt.Printf("Workflow:  %s\n", state.WorkflowID)
	fmt.Printf("Document:  %s\n", state.DocumentID)
	fmt.Printf("Product:   %s\n", state.Product)
	fmt.Printf("Status:    %s\n", state.Status)
	if state.CurrentStage != "" {
		fmt.Printf("Stage:     %s\n", state.CurrentStage)
	}
	fmt.Printf("Progress:  %.0f%%\n", state.Progress*100)
	if state.Error != "" {
		fmt.Printf("Error:     %s\n", state.Error)
	}
	for _, w := range state.Warnings {
		fmt.Printf("Warning:   %s\n", w)
	}
	fmt.Printf("Started:   %s\n", state.StartedAt.Format(time.RFC3339))
	fmt.Printf("Updated:   %s\n", state.UpdatedAt.Format(time.RFC3339))
	return nil
}

func printRunList(nc *nats.Conn) error {
	msg, err := nc.Request(pipeline.SubjectStatusList, nil, 15*time.Second)
	if err != nil {
		return fmt.Errorf("status query: %w", err)
	}

	var runs []storage.RunState
	if err := json.Unmarshal(msg.Data, &runs); err != nil {
		return fmt.Errorf("parse status reply: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WORKFLOW\tDOCUMENT\tSTATUS\tSTAGE\tPROGRESS\tUPDATED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			run.WorkflowID, run.DocumentID, run.Status, run.CurrentStage,
			run.Progress*100, run.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func connectCoreNATS(appCfg *appconfig.Config) (*nats.Conn, error) {
	url := nats.DefaultURL
	if appCfg.NATS.URL != "" {
		url = appCfg.NATS.URL
	}
	if envURL := os.Getenv(appconfig.EnvNATSURL); envURL != "" {
		url = envURL
	}

	nc, err := nats.Connect(url, nats.Name(appName), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}
