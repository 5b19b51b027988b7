// searchctl runs one search against the configured database and prints the
// ranked items with the retrieval trace.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"visual-search-be/internal/bootstrap"
	"visual-search-be/internal/config"
	"visual-search-be/internal/dto"
	"visual-search-be/internal/pkg/logger"
	"visual-search-be/pkg/database"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

func main() {
	owner := flag.String("owner", "", "owner id whose items are searched (required)")
	mode := flag.String("mode", "adaptive", "keyword, vector, hybrid or adaptive")
	topK := flag.Int("top-k", 0, "number of results (0 uses SEARCH_DEFAULT_TOP_K)")
	answer := flag.Bool("answer", false, "generate a cited answer")
	asJSON := flag.Bool("json", false, "print the raw response")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: searchctl -owner <uuid> [flags] <query>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	ownerID, err := uuid.Parse(*owner)
	if err != nil || query == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.Database.Connection == "" {
		color.Red("DB_CONNECTION_STRING is not set")
		os.Exit(1)
	}
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
	if err != nil {
		color.Red("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	searchService, cleanup, err := bootstrap.NewSearchService(ctx, db, cfg, logger.NewNopLogger())
	if err != nil {
		color.Red("Failed to build search: %v", err)
		os.Exit(1)
	}
	defer cleanup()

	res, err := searchService.Search(ctx, ownerID, &dto.SearchRequest{
		Query:         query,
		TopK:          *topK,
		Mode:          *mode,
		IncludeAnswer: *answer,
	})
	if err != nil {
		color.Red("Search failed: %v", err)
		os.Exit(1)
	}

	if *asJSON {
		out, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(out))
		return
	}
	printResponse(query, res)
}

func printResponse(query string, res *dto.SearchResponse) {
	color.Cyan("🔎 %q: %d result(s) in %.1f ms\n", query, res.TotalResults, res.RetrievalTimeMs)

	for i, r := range res.Results {
		color.Green("\n%2d. %s  (score %.4f)", i+1, r.ItemId, r.Score)
		if r.Headline != "" {
			fmt.Printf("    %s\n", r.Headline)
		}
		if r.Category != "" {
			fmt.Printf("    category: %s\n", r.Category)
		}
		if r.Summary != "" {
			fmt.Printf("    %s\n", r.Summary)
		}
	}

	if len(res.ToolsUsed) > 0 {
		color.Yellow("\nTools")
		for _, t := range res.ToolsUsed {
			fmt.Printf("  - %s: %s\n", t.Tool, t.Detail)
		}
	}
	if len(res.Reasoning) > 0 {
		color.Yellow("\nReasoning")
		for _, line := range res.Reasoning {
			fmt.Printf("  - %s\n", line)
		}
	}

	if res.Answer != nil {
		color.Magenta("\nAnswer")
		fmt.Println(*res.Answer)
		if len(res.Citations) > 0 {
			fmt.Printf("Citations: %s\n", strings.Join(res.Citations, ", "))
		}
		if res.Confidence != nil {
			fmt.Printf("Confidence: %.2f\n", *res.Confidence)
		}
	}
}
