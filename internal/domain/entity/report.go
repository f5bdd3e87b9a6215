package entity

type StrategyReport struct {
	Kind     ActionKind `json:"kind"`
	Selector string     `json:"selector"`
	Rank     int        `json:"rank"`
}

// Report is the read-only summary produced once a session is sealed.
type Report struct {
	RunID              string            `json:"run_id"`
	Goal               string            `json:"goal"`
	FinalURL           string            `json:"final_url"`
	TotalActions       int               `json:"total_actions"`
	Executed           int               `json:"executed"`
	Skipped            int               `json:"skipped"`
	ErrorCount         int               `json:"error_count"`
	ExtractedKeys      []string          `json:"extracted_keys"`
	Extracted          map[string]string `json:"extracted,omitempty"`
	TerminationReason  RunState          `json:"termination_reason"`
	NavigationPath     []string          `json:"navigation_path,omitempty"`
	SelectorStrategies []StrategyReport  `json:"selector_strategies,omitempty"`
	DurationMs         int64             `json:"duration_ms"`
	Error              string            `json:"error,omitempty"`
}
