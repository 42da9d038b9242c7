package mcp

import (
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

func TestBuildQueryArgs(t *testing.T) {
	args := BuildQueryArgs("/data/sales.csv", "SELECT * FROM base", 5, true)

	datasets, ok := args["datasets"].([]any)
	if !ok || len(datasets) != 1 {
		t.Fatalf("expected one dataset entry, got %v", args["datasets"])
	}

	ds := datasets[0].(map[string]any)
	if ds["name"] != CanonicalTable {
		t.Errorf("dataset name: got %v, want %q", ds["name"], CanonicalTable)
	}
	if ds["path"] != "/data/sales.csv" {
		t.Errorf("dataset path: got %v", ds["path"])
	}
	if ds["sql"] != "SELECT * FROM base" {
		t.Errorf("dataset sql: got %v", ds["sql"])
	}
	if args["limit"] != 5 {
		t.Errorf("limit: got %v", args["limit"])
	}
	if args["result_only"] != true {
		t.Errorf("result_only: got %v", args["result_only"])
	}
}

func TestBuildQueryArgsNoLimit(t *testing.T) {
	args := BuildQueryArgs("/data/sales.csv", "SELECT 1", 0, false)

	if _, present := args["limit"]; present {
		t.Error("limit should be omitted when zero")
	}
}

func TestRewriteDatasetPath(t *testing.T) {
	tests := []struct {
		name          string
		args          map[string]any
		wantRewritten bool
	}{
		{
			name: "drifted path rewritten",
			args: map[string]any{
				"datasets": []any{
					map[string]any{"name": "base", "path": "/placeholder/path.csv", "sql": "SELECT 1"},
				},
			},
			wantRewritten: true,
		},
		{
			name: "canonical path untouched",
			args: map[string]any{
				"datasets": []any{
					map[string]any{"name": "base", "path": "/data/sales.csv", "sql": "SELECT 1"},
				},
			},
			wantRewritten: false,
		},
		{
			name:          "missing datasets key",
			args:          map[string]any{"limit": 5},
			wantRewritten: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RewriteDatasetPath(tt.args, "/data/sales.csv")
			if got != tt.wantRewritten {
				t.Errorf("rewritten: got %v, want %v", got, tt.wantRewritten)
			}

			if datasets, ok := tt.args["datasets"].([]any); ok {
				for _, entry := range datasets {
					ds := entry.(map[string]any)
					if ds["path"] != "/data/sales.csv" {
						t.Errorf("path not canonical after rewrite: %v", ds["path"])
					}
				}
			}
		})
	}
}

func TestParseQueryResult(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantErr   bool
		wantRows  int
		wantCols  int
		wantTotal int
	}{
		{
			name:      "full payload",
			text:      `{"rows": [["east", 10], ["west", 20]], "column_names": ["region", "total"], "total_rows": 2, "execution_time_ms": 12}`,
			wantRows:  2,
			wantCols:  2,
			wantTotal: 2,
		},
		{
			name:      "payload with log preamble",
			text:      "Registered dataset base\n{\"rows\": [[1]], \"column_names\": [\"n\"], \"total_rows\": 1, \"execution_time_ms\": 3}",
			wantRows:  1,
			wantCols:  1,
			wantTotal: 1,
		},
		{
			name:      "result_only bare rows",
			text:      `[["east", 10], ["west", 20]]`,
			wantRows:  2,
			wantTotal: 2,
		},
		{
			name:    "error token",
			text:    "Error: table 'bose' not found",
			wantErr: true,
		},
		{
			name:    "error token after preamble",
			text:    "executing query\nError during planning: invalid column",
			wantErr: true,
		},
		{
			name:    "empty text",
			text:    "",
			wantErr: true,
		},
		{
			name:    "no json payload",
			text:    "query completed",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseQueryResult(tt.text)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(result.Rows) != tt.wantRows {
				t.Errorf("rows: got %d, want %d", len(result.Rows), tt.wantRows)
			}
			if len(result.ColumnNames) != tt.wantCols {
				t.Errorf("columns: got %d, want %d", len(result.ColumnNames), tt.wantCols)
			}
			if result.TotalRows != tt.wantTotal {
				t.Errorf("total_rows: got %d, want %d", result.TotalRows, tt.wantTotal)
			}
		})
	}
}

func TestToolResultText(t *testing.T) {
	result := &mcptypes.CallToolResult{
		Content: []mcptypes.Content{
			mcptypes.NewTextContent("part one "),
			mcptypes.NewTextContent("part two"),
		},
	}

	if got := ToolResultText(result); got != "part one part two" {
		t.Errorf("got %q", got)
	}

	if got := ToolResultText(nil); got != "" {
		t.Errorf("nil result should yield empty string, got %q", got)
	}
}

func TestSummarize(t *testing.T) {
	result := &QueryResult{
		Rows: [][]any{
			{"east", float64(10), nil},
			{"west", float64(20), true},
			{"north", float64(5), false},
			{"south", float64(7), true},
		},
		ColumnNames: []string{"region", "total", "active"},
		TotalRows:   4,
	}

	summary := Summarize(result)

	if summary.RowCount != 4 {
		t.Errorf("row count: got %d", summary.RowCount)
	}
	if len(summary.SampleRows) != 3 {
		t.Errorf("sample rows capped at 3, got %d", len(summary.SampleRows))
	}
	if len(summary.ColumnTypes) != 3 {
		t.Fatalf("column types: got %d", len(summary.ColumnTypes))
	}
	if summary.ColumnTypes[0] != "string" {
		t.Errorf("column 0 type: got %q", summary.ColumnTypes[0])
	}
	if summary.ColumnTypes[1] != "number" {
		t.Errorf("column 1 type: got %q", summary.ColumnTypes[1])
	}
	// First non-null value in column 2 is in the second row
	if summary.ColumnTypes[2] != "boolean" {
		t.Errorf("column 2 type: got %q", summary.ColumnTypes[2])
	}
}

func TestSummarizeEmptyResult(t *testing.T) {
	summary := Summarize(&QueryResult{ColumnNames: []string{"a"}})

	if summary.RowCount != 0 {
		t.Errorf("row count: got %d", summary.RowCount)
	}
	if summary.ColumnTypes[0] != "null" {
		t.Errorf("empty column type: got %q", summary.ColumnTypes[0])
	}
}
