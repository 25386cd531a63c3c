// Package cmd provides CLI commands for the mailaction tool.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haneul-labs/mailaction/config"
	"github.com/haneul-labs/mailaction/credentials"
	"github.com/haneul-labs/mailaction/pkg/batch"
	"github.com/haneul-labs/mailaction/pkg/events"
	"github.com/haneul-labs/mailaction/pkg/index"
	"github.com/haneul-labs/mailaction/pkg/llm"
	"github.com/haneul-labs/mailaction/pkg/logging"
	"github.com/haneul-labs/mailaction/pkg/pipeline"
	"github.com/haneul-labs/mailaction/pkg/store"
)

// Process command flags.
var (
	processFile        string
	processDryRun      bool
	processConcurrency int
	processOutput      string

	processRecipientName  string
	processRecipientEmail string
	processRecipientTeam  string
)

// ProcessCmd runs the extraction pipeline over a batch file.
var ProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a batch file of email records",
	Long: `Process a batch file of email records through the action extraction
pipeline: normalize, detect policy, extract actions via the completion
service, resolve Korean deadline phrases to UTC, then index the email
chunks and persist any extracted action.

The batch file uses the provider envelope shape:
  {"values": [{"recordId": "1", "data": {"subject": ..., "email_body": ..., ...}}]}

Examples:
  # Process a batch for the configured recipient
  mailaction process --file ./records.json

  # Extract only, skip index upload and table writes
  mailaction process --file ./records.json --dry-run

  # Override the analyzed recipient
  mailaction process --file ./records.json \
    --recipient-name 김철수 --recipient-email kim.cs@techcorp.co.kr --recipient-team 데이터팀

  # Machine-readable run statistics
  mailaction process --file ./records.json --output json`,
	RunE: runProcess,
}

func init() {
	ProcessCmd.Flags().StringVarP(&processFile, "file", "f", "", "Batch file to process (required)")
	ProcessCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Extract without indexing or persisting")
	ProcessCmd.Flags().IntVar(&processConcurrency, "concurrency", 0, "Worker count (defaults to config)")
	ProcessCmd.Flags().StringVarP(&processOutput, "output", "o", "text", "Output format: text or json")
	ProcessCmd.Flags().StringVar(&processRecipientName, "recipient-name", "", "Recipient name override")
	ProcessCmd.Flags().StringVar(&processRecipientEmail, "recipient-email", "", "Recipient email override")
	ProcessCmd.Flags().StringVar(&processRecipientTeam, "recipient-team", "", "Recipient team override")
	_ = ProcessCmd.MarkFlagRequired("file")
}

// runProcess wires the pipeline from configuration and credentials, then
// runs the batch.
func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logging.NewLogger(&logging.Config{
		Level:       logging.Level(cfg.LogLevel),
		ServiceName: "mailaction",
		JSONFormat:  cfg.LogJSON,
		Output:      os.Stderr,
	})

	rc := recipientContext(cfg)
	if rc.Name == "" && rc.Email == "" {
		return fmt.Errorf("no recipient configured: set recipient in config or pass --recipient-name/--recipient-email")
	}

	if cfg.Completion.Endpoint == "" {
		return fmt.Errorf("completion endpoint not configured: set completion.endpoint or MAILACTION_OPENAI_ENDPOINT")
	}

	credStore, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}
	creds, err := credStore.GetActiveCredentials()
	if err != nil {
		return fmt.Errorf("loading credentials: %w (run 'mailaction auth login')", err)
	}
	if creds.CompletionKey == "" {
		return fmt.Errorf("no completion key available: run 'mailaction auth login' or set MAILACTION_OPENAI_KEY")
	}

	llmClient := llm.NewClient(
		cfg.Completion.Endpoint,
		creds.CompletionKey,
		cfg.Completion.EmbeddingDeployment,
		log,
		llm.WithTimeout(cfg.Completion.Timeout),
	)

	extractor := pipeline.NewExtractor(llmClient, cfg.Completion.ChatDeployment, log)
	resolver := pipeline.NewResolver(llmClient, cfg.Completion.ChatDeployment, log)
	proc := pipeline.New(extractor, resolver, log,
		pipeline.WithDefaultConfidence(cfg.DefaultConfidence))

	var (
		indexer batch.Indexer
		actions batch.ActionStore
		closers []func()
	)
	if !processDryRun {
		if cfg.Search.Endpoint != "" {
			if creds.SearchKey == "" {
				return fmt.Errorf("search endpoint configured but no search key: run 'mailaction auth login' or set MAILACTION_SEARCH_KEY")
			}
			uploader := index.NewClient(cfg.Search.Endpoint, cfg.Search.Index, creds.SearchKey, log)
			indexer = index.NewIndexer(uploader, llmClient, log)
		}
		if cfg.Storage.PostgresDSN != "" {
			repo, err := store.Connect(cmd.Context(), cfg.Storage.PostgresDSN, log)
			if err != nil {
				return fmt.Errorf("connecting to action store: %w", err)
			}
			closers = append(closers, repo.Close)
			if err := repo.EnsureSchema(cmd.Context()); err != nil {
				repo.Close()
				return fmt.Errorf("ensuring action schema: %w", err)
			}
			actions = repo
		}
	}
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	runnerOpts := []batch.RunnerOption{}
	concurrency := cfg.Concurrency
	if processConcurrency > 0 {
		concurrency = processConcurrency
	}
	runnerOpts = append(runnerOpts, batch.WithConcurrency(concurrency))

	if cfg.Events.RedisAddr != "" && !processDryRun {
		pub, err := events.NewRedisPublisher(cmd.Context(), cfg.Events.RedisAddr, log)
		if err != nil {
			log.Warn("event publisher unavailable, continuing without events", logging.Err(err))
		} else {
			closers = append(closers, func() { _ = pub.Close() })
			runnerOpts = append(runnerOpts, batch.WithPublisher(pub))
		}
	}

	records, err := batch.LoadRecords(processFile)
	if err != nil {
		return fmt.Errorf("loading batch file: %w", err)
	}

	runner := batch.NewRunner(proc, indexer, actions, cfg.TenantID, log, runnerOpts...)
	stats := runner.Run(cmd.Context(), records, rc)

	return printStats(cmd, stats)
}

// recipientContext builds the analyzed recipient from config with flag
// overrides.
func recipientContext(cfg *config.Config) pipeline.RecipientContext {
	rc := pipeline.RecipientContext{
		Name:  cfg.Recipient.Name,
		Email: cfg.Recipient.Email,
		Team:  cfg.Recipient.Team,
	}
	if processRecipientName != "" {
		rc.Name = processRecipientName
	}
	if processRecipientEmail != "" {
		rc.Email = processRecipientEmail
	}
	if processRecipientTeam != "" {
		rc.Team = processRecipientTeam
	}
	return rc
}

// printStats writes run statistics in the requested format.
func printStats(cmd *cobra.Command, stats batch.RunStats) error {
	if processOutput == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s finished in %s\n", stats.RunID, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Total records:     %d\n", stats.Total)
	fmt.Fprintf(out, "  Processed:         %d\n", stats.Processed)
	fmt.Fprintf(out, "  Skipped:           %d\n", stats.Skipped)
	fmt.Fprintf(out, "  Actions extracted: %d\n", stats.ActionsExtracted)
	fmt.Fprintf(out, "  Errors:            %d\n", len(stats.Errors))
	for _, re := range stats.Errors {
		fmt.Fprintf(out, "    %s [%s]: %s\n", re.RecordID, re.Code, re.Message)
	}
	if len(stats.Errors) > 0 {
		return fmt.Errorf("%d of %d records failed", len(stats.Errors), stats.Total)
	}
	return nil
}
