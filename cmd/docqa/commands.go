package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avelik/docqa/internal/config"
	"github.com/avelik/docqa/internal/rag"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF document to the running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Uploading %s...", args[0])
		resp, err := client.uploadFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		var result rag.UploadResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Ingested %s: %d pages, %d chunks (id %s)",
			result.Filename, result.PageCount, result.ChunkCount, result.DocumentID)
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question over the uploaded documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		maxResults, _ := cmd.Flags().GetInt("max-results")
		noRerank, _ := cmd.Flags().GetBool("no-rerank")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		useReranking := !noRerank
		resp, err := client.post(cmd.Context(), "/query", map[string]any{
			"query":         question,
			"max_results":   maxResults,
			"use_reranking": useReranking,
		})
		if err != nil {
			return err
		}

		var result rag.QueryResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		if len(result.Sources) > 0 {
			fmt.Println()
			fmt.Println(colorize(ansiBold, "Sources:"))
			for i, s := range result.Sources {
				fmt.Printf("  %d. %s (page %d, score %.3f)\n", i+1, s.DocumentName, s.PageNumber, s.SimilarityScore)
			}
		}
		fmt.Printf("\n%s %.2fs\n", colorize(ansiCyan, "answered in"), result.ProcessingTime)
		return nil
	},
}

func init() {
	askCmd.Flags().Int("max-results", 5, "maximum number of sources")
	askCmd.Flags().Bool("no-rerank", false, "skip reranking and keep retrieval order")
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage uploaded documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/documents")
		if err != nil {
			return err
		}

		var result struct {
			Documents []rag.DocumentInfo `json:"documents"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Documents) == 0 {
			fmt.Println("No documents uploaded.")
			return nil
		}
		for _, d := range result.Documents {
			fmt.Printf("%s  %-12s  %3dp %4dc  %s\n",
				colorize(ansiCyan, d.DocumentID[:8]),
				d.Status,
				d.PageCount,
				d.ChunkCount,
				d.Filename,
			)
		}
		return nil
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its indexed chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/documents/"+args[0])
		if err != nil {
			return err
		}

		var result struct {
			ChunksDeleted int `json:"chunks_deleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted document %s (%d chunks removed)", args[0], result.ChunksDeleted)
		return nil
	},
}

func init() {
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show docqa system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		client := &http.Client{Timeout: 2 * time.Second}
		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

		resp, err := client.Get(serverURL + "/health")
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			var health struct {
				ChunksIndexed int  `json:"chunks_indexed"`
				LLMConfigured bool `json:"llm_configured"`
			}
			if decodeErr := decodeJSON(resp, &health); decodeErr == nil {
				printStatus("Server", "running on port %d", cfg.Server.Port)
				printStatus("Chunks indexed", "%d", health.ChunksIndexed)
				if health.LLMConfigured {
					printStatus("LLM", "configured")
				} else {
					printStatus("LLM", "not configured")
				}
			} else {
				printStatus("Server", "error (%v)", decodeErr)
			}
		}

		ollamaResp, err := client.Get(cfg.Embedding.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Embedding.BaseURL)
		}

		printStatus("Embed model", "%s (%d dims)", cfg.Embedding.Model, cfg.Embedding.Dimension)
		printStatus("Rerank model", "%s", cfg.Rerank.Model)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}
