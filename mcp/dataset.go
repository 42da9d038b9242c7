package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// The reader server exposes dataset querying through a single tool. All
// generated SQL references the canonical table regardless of the dataset's
// real file name; the reader registers the file under that alias.
const (
	QueryToolName  = "mcp_reader-servic_query_dataset"
	CanonicalTable = "base"
)

// QueryResult is the parsed payload of a successful dataset query.
type QueryResult struct {
	Rows            [][]any  `json:"rows"`
	ColumnNames     []string `json:"column_names"`
	TotalRows       int      `json:"total_rows"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
}

// BuildQueryArgs assembles the argument map for the query tool.
//
// datasetPath is the canonical dataset path; sql must reference the
// canonical table. A limit of 0 means no limit argument is sent.
func BuildQueryArgs(datasetPath, sql string, limit int, resultOnly bool) map[string]any {
	args := map[string]any{
		"datasets": []any{
			map[string]any{
				"name": CanonicalTable,
				"path": datasetPath,
				"sql":  sql,
			},
		},
		"result_only": resultOnly,
	}
	if limit > 0 {
		args["limit"] = limit
	}
	return args
}

// RewriteDatasetPath forces every dataset entry in a query tool's arguments
// to the canonical path. Models drift to placeholder or stale paths, so the
// declared path is never trusted. Returns true when a rewrite happened.
func RewriteDatasetPath(args map[string]any, canonicalPath string) bool {
	datasets, ok := args["datasets"].([]any)
	if !ok {
		return false
	}

	rewritten := false
	for _, entry := range datasets {
		ds, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if path, _ := ds["path"].(string); path != canonicalPath {
			ds["path"] = canonicalPath
			rewritten = true
		}
	}
	return rewritten
}

// ToolResultText flattens the text content blocks of a CallToolResult.
func ToolResultText(result *mcptypes.CallToolResult) string {
	if result == nil {
		return ""
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if tc, ok := mcptypes.AsTextContent(content); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// ParseQueryResult interprets the text returned by the query tool.
//
// The server reports failures as plain text containing the token "Error"
// without raising a protocol-level error, so that token is treated as a
// failure. It may also prefix the JSON payload with a log preamble which is
// stripped before decoding.
func ParseQueryResult(text string) (*QueryResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty query result")
	}

	if strings.Contains(trimmed, "Error") {
		return nil, fmt.Errorf("query failed: %s", trimmed)
	}

	payload := stripPreamble(trimmed)
	if payload == "" {
		return nil, fmt.Errorf("no JSON payload in query result: %s", trimmed)
	}

	var result QueryResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		// result_only mode returns the bare rows array
		var rows [][]any
		if rowsErr := json.Unmarshal([]byte(payload), &rows); rowsErr == nil {
			return &QueryResult{Rows: rows, TotalRows: len(rows)}, nil
		}
		return nil, fmt.Errorf("failed to decode query result: %w", err)
	}

	return &result, nil
}

// stripPreamble drops any non-JSON prefix, returning the substring starting
// at the first '{' or '['.
func stripPreamble(text string) string {
	objIdx := strings.Index(text, "{")
	arrIdx := strings.Index(text, "[")

	idx := objIdx
	if idx == -1 || (arrIdx != -1 && arrIdx < idx) {
		idx = arrIdx
	}
	if idx == -1 {
		return ""
	}
	return text[idx:]
}

// ResultSummary is a compact description of a query result's shape, used
// when asking the model to repair rendering code against real data.
type ResultSummary struct {
	RowCount    int      `json:"rowCount"`
	ColumnNames []string `json:"columnNames"`
	ColumnTypes []string `json:"columnTypes"`
	SampleRows  [][]any  `json:"sampleRows"`
}

// Summarize builds a ResultSummary with at most three sample rows. Column
// types are inferred from the first non-null value in each column.
func Summarize(result *QueryResult) ResultSummary {
	summary := ResultSummary{
		ColumnNames: result.ColumnNames,
		RowCount:    result.TotalRows,
	}
	if summary.RowCount == 0 {
		summary.RowCount = len(result.Rows)
	}

	sample := result.Rows
	if len(sample) > 3 {
		sample = sample[:3]
	}
	summary.SampleRows = sample

	summary.ColumnTypes = make([]string, len(result.ColumnNames))
	for col := range result.ColumnNames {
		summary.ColumnTypes[col] = "null"
		for _, row := range result.Rows {
			if col >= len(row) || row[col] == nil {
				continue
			}
			summary.ColumnTypes[col] = inferType(row[col])
			break
		}
	}

	return summary
}

func inferType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, float32, int, int32, int64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "object"
	}
}
