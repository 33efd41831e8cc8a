package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiyo/replica-builder/internal/config"
	"github.com/xiyo/replica-builder/internal/generate"
	"github.com/xiyo/replica-builder/internal/logger"
)

type generateFlags struct {
	outDir string
	model  string
}

// newGenerateCommand creates the generate subcommand
func newGenerateCommand() *cobra.Command {
	flags := &generateFlags{}

	cmd := &cobra.Command{
		Use:   "generate <topic>",
		Short: "Generate documentation site content for a topic",
		Long: `Generate a complete documentation content tree for the given topic
using the Gemini API. The output directory receives an index page plus one
markdown file per generated document.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 || strings.TrimSpace(strings.Join(args, " ")) == "" {
				return fmt.Errorf("requires a topic (use quotes for multi-word topics)")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), flags, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&flags.outDir, "out", "o", "generated-docs", "Directory to write generated content into")
	cmd.Flags().StringVar(&flags.model, "model", "", "Gemini model to use (overrides REPLICA_GEMINI_MODEL)")

	return cmd
}

// runGenerate runs the content generation pipeline for one topic
func runGenerate(ctx context.Context, flags *generateFlags, topic string) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	model := cfg.Gemini.Model
	if flags.model != "" {
		model = flags.model
	}

	client, err := generate.NewGeminiClient(cfg.Gemini.APIKey, model, cfg.Gemini.MaxRetries)
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Interrupt received, stopping generation")
		cancel()
	}()

	pipeline := generate.NewPipeline(client, flags.outDir)
	if err := pipeline.Run(ctx, topic); err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	logger.WithField("out_dir", flags.outDir).Info("Content generation complete")
	return nil
}
