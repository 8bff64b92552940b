package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// InsightRequest represents the insight append API request.
type InsightRequest struct {
	CollectionID string `json:"collection_id"`
	Query        string `json:"query"`
	Response     string `json:"response"`
}

// Insight represents one recorded query/response pair.
type Insight struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	SessionID    string `json:"session_id"`
	Query        string `json:"query"`
	Response     string `json:"response"`
	CreatedAt    string `json:"created_at"`
}

// HistoryAPIResponse represents the session history API response.
type HistoryAPIResponse struct {
	Insights []Insight `json:"insights"`
}

// SessionCmd creates the session command group.
func SessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage insight sessions",
		Long:  "Records answered queries against a session and replays session history.",
	}

	cmd.AddCommand(sessionRecordCmd())
	cmd.AddCommand(sessionHistoryCmd())

	return cmd
}

func sessionRecordCmd() *cobra.Command {
	var (
		collectionID string
		query        string
		response     string
	)

	cmd := &cobra.Command{
		Use:   "record <session-id>",
		Short: "Record an answered query in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSessionRecord(cmd, args[0], collectionID, query, response, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&collectionID, "collection", "c", "", "Collection the insight belongs to (required)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "The query that was answered (required)")
	cmd.Flags().StringVarP(&response, "response", "r", "", "The response given (required)")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("response")

	return cmd
}

func runSessionRecord(cmd *cobra.Command, sessionID, collectionID, query, response string, outputJSON bool) error {
	api := NewAPIClient(cmd)

	req := InsightRequest{
		CollectionID: collectionID,
		Query:        query,
		Response:     response,
	}

	resp, err := api.Post("/v1/sessions/"+sessionID+"/insights", req)
	if err != nil {
		return fmt.Errorf("record failed: %w", err)
	}

	var insight Insight
	if err := json.Unmarshal(resp.Data, &insight); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(insight, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Recorded insight %s in session %s\n", insight.ID, insight.SessionID)
	return nil
}

func sessionHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show a session's insight history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSessionHistory(cmd, args[0], outputJSON)
		},
	}

	return cmd
}

func runSessionHistory(cmd *cobra.Command, sessionID string, outputJSON bool) error {
	api := NewAPIClient(cmd)

	resp, err := api.Get("/v1/sessions/" + sessionID + "/history")
	if err != nil {
		return fmt.Errorf("history failed: %w", err)
	}

	var historyResp HistoryAPIResponse
	if err := json.Unmarshal(resp.Data, &historyResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(historyResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(historyResp.Insights) == 0 {
		fmt.Println("No insights recorded.")
		return nil
	}

	fmt.Printf("Session %s (%d insights):\n\n", sessionID, len(historyResp.Insights))
	for i, ins := range historyResp.Insights {
		fmt.Printf("%d. Q: %s\n", i+1, ins.Query)
		fmt.Printf("   A: %s\n", ins.Response)
		if ins.CreatedAt != "" {
			fmt.Printf("   At: %s\n", ins.CreatedAt)
		}
		if i < len(historyResp.Insights)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}

	return nil
}
