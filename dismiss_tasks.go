// dismiss_tasks.go defines the dismiss_tasks and retry_tasks tool types.
package main

// DismissTasksArgs is the input for the dismiss_tasks tool.
type DismissTasksArgs struct {
	// TaskIDs dismisses specific tasks whatever their status. If TaskIDs is
	// empty and DoneOnly is false, every task not currently being processed
	// is dismissed.
	TaskIDs  []string `json:"task_ids,omitempty"  jsonschema:"Specific task IDs to dismiss. Empty dismisses all idle tasks."`
	DoneOnly bool     `json:"done_only,omitempty" jsonschema:"Only clear tasks that are already renamed"`
}

// DismissTasksOutput reports how many tasks were actually removed.
type DismissTasksOutput struct {
	Dismissed int `json:"dismissed"`
}

// RetryTasksArgs is the input for the retry_tasks tool.
type RetryTasksArgs struct {
	TaskIDs []string `json:"task_ids,omitempty" jsonschema:"Failed task IDs to queue again. Empty retries every failed task."`
}

// RetryTasksOutput reports how many failed tasks were queued again.
type RetryTasksOutput struct {
	Retried int `json:"retried"`
}
