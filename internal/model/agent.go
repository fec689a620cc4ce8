package model

type ProcessingStats struct {
	Processed  int `json:"processed"`
	Processing int `json:"processing"`
	Pending    int `json:"pending"`
}

// ProcessingEmail is a row of the processing/pending queues.
type ProcessingEmail struct {
	ID          string      `json:"id"`
	Subject     string      `json:"subject"`
	Sender      string      `json:"sender"`
	Status      EmailStatus `json:"status"`
	StartedAt   string      `json:"started_at"`
	CurrentStep string      `json:"current_step,omitempty"`
}

type NodeError struct {
	Node      string `json:"node"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

type ProcessResult struct {
	Success         bool            `json:"success"`
	EmailID         string          `json:"email_id"`
	TaskID          string          `json:"task_id,omitempty"`
	CompletedNodes  []string        `json:"completed_nodes,omitempty"`
	Errors          []NodeError     `json:"errors,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	ImportanceLevel string          `json:"importance_level,omitempty"`
	Classification  *Classification `json:"classification,omitempty"`
	Status          string          `json:"status"` // processing, completed, failed
	Message         string          `json:"message,omitempty"`
}

type BatchTask struct {
	EmailID string `json:"email_id"`
	TaskID  string `json:"task_id"`
}

type BatchItemResult struct {
	EmailID         string      `json:"email_id"`
	Success         bool        `json:"success"`
	CompletedNodes  []string    `json:"completed_nodes,omitempty"`
	Errors          []NodeError `json:"errors,omitempty"`
	Summary         string      `json:"summary,omitempty"`
	ImportanceLevel string      `json:"importance_level,omitempty"`
	Error           string      `json:"error,omitempty"`
}

type BatchProcessResult struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	Tasks        []BatchTask       `json:"tasks,omitempty"`
	Results      []BatchItemResult `json:"results,omitempty"`
	Total        int               `json:"total"`
	SuccessCount int               `json:"success_count,omitempty"`
	FailedCount  int               `json:"failed_count,omitempty"`
	Status       string            `json:"status"`
}
