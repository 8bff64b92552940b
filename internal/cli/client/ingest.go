package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// BackendOutcome represents one backend's result within a commit receipt.
type BackendOutcome struct {
	Backend   string `json:"backend"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// CommitReceipt represents the commit API response.
type CommitReceipt struct {
	EventID  string           `json:"event_id"`
	Kind     string           `json:"kind"`
	Outcomes []BackendOutcome `json:"outcomes"`
}

// IngestCmd creates the ingest command group.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Commit extraction records",
		Long:  "Reads a JSON record from a file or stdin and commits it to the configured backends.",
	}

	cmd.AddCommand(ingestRecordCmd("triple", "/v1/triples", "Commit a semantic triple"))
	cmd.AddCommand(ingestRecordCmd("embedding", "/v1/embeddings", "Commit an embedded knowledge record"))

	return cmd
}

func ingestRecordCmd(name, path, short string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runIngest(cmd, path, file, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file to read (defaults to stdin)")

	return cmd
}

func runIngest(cmd *cobra.Command, path, file string, outputJSON bool) error {
	raw, err := readInput(file)
	if err != nil {
		return err
	}

	var body json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}

	api := NewAPIClient(cmd)
	resp, err := api.Post(path, body)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	var receipt CommitReceipt
	if err := json.Unmarshal(resp.Data, &receipt); err != nil {
		return fmt.Errorf("failed to parse receipt: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(receipt, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Committed %s %s\n", receipt.Kind, receipt.EventID)
	for _, outcome := range receipt.Outcomes {
		line := fmt.Sprintf("  %s [%s]: %s", outcome.Backend, outcome.Role, outcome.Status)
		if outcome.ErrorKind != "" {
			line += " (" + outcome.ErrorKind + ")"
		}
		fmt.Println(line)
	}

	return nil
}

func readInput(file string) ([]byte, error) {
	if file == "" || file == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return raw, nil
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return raw, nil
}
