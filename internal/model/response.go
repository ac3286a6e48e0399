package model

// QueryResult is the envelope for preview and query responses. Columns
// carries the selected entry order, since row fields serialize as
// unordered JSON objects.
type QueryResult struct {
	Columns  []string    `json:"columns,omitempty"`
	Resource []Row       `json:"resource"`
	Meta     *ResultMeta `json:"meta,omitempty"`
}

// ResultMeta carries result-set metadata alongside the rows.
type ResultMeta struct {
	Count    int     `json:"count"`
	Capped   bool    `json:"capped"`
	Sequence uint64  `json:"sequence,omitempty"`
	TookMs   float64 `json:"took_ms"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the
// API. Kind names the error taxonomy entry ("schema_unavailable",
// "query_error", "duplicate_name", "export_empty") when one applies.
type ErrorDetail struct {
	Code    int            `json:"code"`
	Kind    string         `json:"kind,omitempty"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}
