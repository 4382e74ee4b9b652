package logging

// LogEntry represents a structured log record with fields relevant to
// background playbook updates.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Playbook-specific fields
	ExecutionID string // The execution whose update produced this record
	AgentType   string // Namespace being read or mutated
	Stage       string // Pipeline stage (reflect, curate, apply, prune, save)

	// General structured data
	Fields map[string]interface{}
}
