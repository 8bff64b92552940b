package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// DiscoverRequest represents the discover API request.
type DiscoverRequest struct {
	Query        string `json:"query"`
	CollectionID string `json:"collection_id"`
	TopK         int    `json:"top_k,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// DiscoveredResult represents a single ranked discovery result.
type DiscoveredResult struct {
	ID             string  `json:"id"`
	DocID          string  `json:"doc_id"`
	DocSource      string  `json:"doc_source,omitempty"`
	Sentence       string  `json:"sentence"`
	Subject        string  `json:"subject,omitempty"`
	Object         string  `json:"object,omitempty"`
	CosineDistance float64 `json:"cosine_distance"`
	Score          float64 `json:"score"`
}

// DiscoverAPIResponse represents the discover API response.
type DiscoverAPIResponse struct {
	Results []DiscoveredResult `json:"results"`
}

// DiscoverCmd creates the discover command.
func DiscoverCmd() *cobra.Command {
	var (
		collectionID string
		topK         int
		sessionID    string
	)

	cmd := &cobra.Command{
		Use:   "discover <query>",
		Short: "Query the knowledge base",
		Long:  "Runs a semantic similarity query against the vector backends and joins relational context.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDiscover(cmd, args[0], collectionID, topK, sessionID, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&collectionID, "collection", "c", "", "Collection to query (required)")
	cmd.Flags().IntVarP(&topK, "top-k", "n", 0, "Maximum number of results (server default when omitted)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID to attribute the query to")
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}

func runDiscover(cmd *cobra.Command, query, collectionID string, topK int, sessionID string, outputJSON bool) error {
	api := NewAPIClient(cmd)

	req := DiscoverRequest{
		Query:        query,
		CollectionID: collectionID,
		TopK:         topK,
		SessionID:    sessionID,
	}

	resp, err := api.Post("/v1/discover", req)
	if err != nil {
		return fmt.Errorf("discover failed: %w", err)
	}

	var discoverResp DiscoverAPIResponse
	if err := json.Unmarshal(resp.Data, &discoverResp); err != nil {
		return fmt.Errorf("failed to parse results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(discoverResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(discoverResp.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(discoverResp.Results))
	for i, result := range discoverResp.Results {
		fmt.Printf("%d. %s (distance %.4f, score %.2f)\n", i+1, result.Sentence, result.CosineDistance, result.Score)
		if result.Subject != "" || result.Object != "" {
			fmt.Printf("   %s -> %s\n", result.Subject, result.Object)
		}
		fmt.Printf("   Document: %s", result.DocID)
		if result.DocSource != "" {
			fmt.Printf(" (%s)", result.DocSource)
		}
		fmt.Println()
		if i < len(discoverResp.Results)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}

	return nil
}
