package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atendezap/atendezap/internal/config"
	"github.com/atendezap/atendezap/internal/knowledge"
	"github.com/atendezap/atendezap/internal/providers"
)

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the qdrant knowledge base",
	}
	cmd.AddCommand(knowledgeIngestCmd())
	cmd.AddCommand(knowledgeSearchCmd())
	return cmd
}

func openKnowledgeStore() (*knowledge.Store, *config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return nil, nil, fmt.Errorf("ATENDEZAP_OPENAI_API_KEY is not set (needed for embeddings)")
	}

	provider := providers.NewOpenAIProvider(
		"openai",
		cfg.Provider.APIKey,
		cfg.Provider.BaseURL,
		cfg.Provider.Model,
		time.Duration(cfg.Provider.RequestTimeoutSec)*time.Second,
		cfg.Provider.RateLimitRPM,
	).WithEmbeddingModel(cfg.Provider.EmbeddingModel)

	ks, err := knowledge.NewStore(cfg.Knowledge, provider)
	if err != nil {
		return nil, nil, err
	}
	return ks, cfg, nil
}

// knowledgeIngestCmd loads .md and .txt files from a directory into the
// collection. The file name (without extension) becomes the document id,
// the first line its title.
func knowledgeIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Embed and upsert documents from a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, _, err := openKnowledgeStore()
			if err != nil {
				return err
			}
			defer ks.Close()

			entries, err := os.ReadDir(args[0])
			if err != nil {
				return fmt.Errorf("read directory: %w", err)
			}

			ctx := context.Background()
			count := 0
			for _, entry := range entries {
				ext := filepath.Ext(entry.Name())
				if entry.IsDir() || (ext != ".md" && ext != ".txt") {
					continue
				}
				data, err := os.ReadFile(filepath.Join(args[0], entry.Name()))
				if err != nil {
					return fmt.Errorf("read %s: %w", entry.Name(), err)
				}

				content := strings.TrimSpace(string(data))
				title := strings.TrimLeft(strings.SplitN(content, "\n", 2)[0], "# ")
				doc := knowledge.Document{
					ID:      strings.TrimSuffix(entry.Name(), ext),
					Title:   title,
					Content: content,
				}
				if err := ks.UpsertDocument(ctx, doc); err != nil {
					return fmt.Errorf("ingest %s: %w", entry.Name(), err)
				}
				fmt.Printf("  ingested %s (%q)\n", entry.Name(), title)
				count++
			}

			fmt.Printf("%d documents ingested\n", count)
			return nil
		},
	}
}

func knowledgeSearchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a retrieval query against the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, cfg, err := openKnowledgeStore()
			if err != nil {
				return err
			}
			defer ks.Close()

			if topK <= 0 {
				topK = cfg.Knowledge.TopK
			}
			snippets, err := ks.Search(context.Background(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			for _, s := range snippets {
				fmt.Printf("[%.3f] %s\n%s\n\n", s.Score, s.Title, s.Content)
			}
			if len(snippets) == 0 {
				fmt.Println("no results above the similarity floor")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top", "k", 0, "number of results (default: config top_k)")
	return cmd
}
