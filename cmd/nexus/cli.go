package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/nexus/internal/adapters/driven/auth"
	"github.com/custodia-labs/nexus/internal/core/domain"
)

var (
	ingestAsync bool

	queryK    int
	queryJSON bool

	tokenSubject string
	tokenTTL     time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [source]",
	Short: "Ingest one stored document",
	Long: `Extract, chunk, embed and index a document from the storage root.
The source is the object key relative to storage.root.

Examples:
  # Ingest synchronously and print the result
  nexus ingest policies/records-retention.pdf

  # Queue for a running worker
  nexus ingest --async policies/records-retention.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question of the indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long: `Sign a bearer token for the /documents and /query endpoints with
auth.jwt_secret.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestAsync, "async", false, "submit to the task queue instead of ingesting in process")
	queryCmd.Flags().IntVar(&queryK, "k", 0, "number of passages to retrieve (0 uses retrieval.default_k)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the result as JSON")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject, for example a service name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (0 uses auth.token_ttl)")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(ingestCmd, queryCmd, tokenCmd)
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runIngest(cmd *cobra.Command, args []string) error {
	source := args[0]
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if ingestAsync {
			taskID, err := a.ingestion.Submit(ctx, source)
			if err != nil {
				return fmt.Errorf("submit failed: %w", err)
			}
			cmd.Printf("Queued %s (task %s)\n", source, taskID)
			return nil
		}

		doc, err := a.ingestion.Ingest(ctx, source)
		if doc != nil {
			printDocument(cmd.OutOrStdout(), doc)
		}
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		return nil
	})
}

func printDocument(w io.Writer, doc *domain.Document) {
	fmt.Fprintf(w, "%s  %s\n", doc.Status, doc.Source)
	fmt.Fprintf(w, "  id:     %s\n", doc.ID)
	fmt.Fprintf(w, "  title:  %s\n", doc.Title)
	fmt.Fprintf(w, "  pages:  %d\n", doc.PageCount)
	fmt.Fprintf(w, "  chunks: %d\n", doc.ChunkCount)
	if doc.Error != "" {
		fmt.Fprintf(w, "  error:  %s\n", doc.Error)
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.QueryTimeout)
		defer cancel()

		result, err := a.query.Query(ctx, domain.QueryRequest{Question: args[0], K: queryK})
		if err != nil {
			var genErr *domain.GenerationError
			if errors.As(err, &genErr) {
				return fmt.Errorf("answer generation failed after %d attempts: %w", genErr.Attempts, genErr.Err)
			}
			return fmt.Errorf("query failed: %w", err)
		}

		if queryJSON {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal result: %w", err)
			}
			cmd.Println(string(data))
			return nil
		}
		printResult(cmd.OutOrStdout(), result)
		return nil
	})
}

func printResult(w io.Writer, result *domain.QueryResult) {
	fmt.Fprintln(w, result.Answer)
	if len(result.Citations) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for i, c := range result.Citations {
		title := c.Title
		if title == "" {
			title = c.DocumentID
		}
		fmt.Fprintf(w, "  [%d] %s, page %d (%.2f)", i+1, title, c.Page, c.Score)
		if c.URL != "" {
			fmt.Fprintf(w, " %s", c.URL)
		}
		fmt.Fprintln(w)
	}
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Auth.JWTSecret.IsSet() {
		return errors.New("auth.jwt_secret is not set")
	}

	adapter, err := auth.NewAdapter(cfg.Auth.JWTSecret.Value(), cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}
	token, err := adapter.Issue(tokenSubject, ttl)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	cmd.Println(token)
	return nil
}
