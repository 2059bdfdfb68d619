package workflow

import (
	"github.com/atlas-civic/budget-tracker/constants"
)

// The engine's output shape is not consistent across workflow kinds: document
// extraction parks its result in a task's outputData, sentiment uses a
// workflow-level status plus either a direct output or a named task, and
// similarity search nests the passage inside output.result. Each kind gets
// its own interpreter; anything missing or mistyped along a field path means
// "not yet ready", never a panic, except where a state is defined terminal.

// DocumentInterpreter waits for tasks[1].outputData.budget_entries. The
// completed payload is the whole outputData of that task.
type DocumentInterpreter struct{}

func (DocumentInterpreter) Interpret(raw map[string]any) Outcome {
	tasks, ok := raw["tasks"].([]any)
	if !ok || len(tasks) < 2 {
		return Outcome{Status: StatusPending, Raw: raw}
	}
	task, ok := tasks[1].(map[string]any)
	if !ok {
		return Outcome{Status: StatusPending, Raw: raw}
	}
	output, ok := task["outputData"].(map[string]any)
	if !ok {
		return Outcome{Status: StatusPending, Raw: raw}
	}
	if _, ok := output["budget_entries"]; !ok {
		return Outcome{Status: StatusPending, Raw: raw}
	}
	return Outcome{Status: StatusCompleted, Raw: raw, Payload: output}
}

// SentimentInterpreter ends the wait on a workflow-level COMPLETED or
// TERMINATED status. TERMINATED means the engine gave up on unclassifiable
// input and maps to the NO_MATCH sentinel rather than an error. On
// completion the label comes from output.result, falling back to the
// outputData of the task named by TaskRef, then to UNKNOWN.
type SentimentInterpreter struct {
	// TaskRef is the reference name of the classification task consulted
	// when the workflow output carries no direct result.
	TaskRef string
}

func (s SentimentInterpreter) Interpret(raw map[string]any) Outcome {
	status, _ := raw["status"].(string)
	switch status {
	case "TERMINATED":
		return Outcome{Status: StatusTerminated, Raw: raw, Result: constants.SentimentNoMatch}
	case "COMPLETED":
	default:
		return Outcome{Status: StatusPending, Raw: raw}
	}

	if output, ok := raw["output"].(map[string]any); ok {
		if result, ok := output["result"].(string); ok && result != "" {
			return Outcome{Status: StatusCompleted, Raw: raw, Result: result}
		}
	}
	if result := s.taskResult(raw); result != "" {
		return Outcome{Status: StatusCompleted, Raw: raw, Result: result}
	}
	return Outcome{Status: StatusCompleted, Raw: raw, Result: constants.SentimentUnknown}
}

func (s SentimentInterpreter) taskResult(raw map[string]any) string {
	tasks, ok := raw["tasks"].([]any)
	if !ok {
		return ""
	}
	for _, t := range tasks {
		task, ok := t.(map[string]any)
		if !ok || task["taskReferenceName"] != s.TaskRef {
			continue
		}
		output, ok := task["outputData"].(map[string]any)
		if !ok {
			return ""
		}
		result, _ := output["result"].(string)
		return result
	}
	return ""
}

// SimilarityInterpreter waits for output.result[0].text. The workflow defines
// no terminal state; exhausting the attempt budget is the only way out when
// no match ever appears.
type SimilarityInterpreter struct{}

func (SimilarityInterpreter) Interpret(raw map[string]any) Outcome {
	output, ok := raw["output"].(map[string]any)
	if !ok {
		return Outcome{Status: StatusPending, Raw: raw}
	}
	result, ok := output["result"].([]any)
	if !ok || len(result) == 0 {
		return Outcome{Status: StatusPending, Raw: raw}
	}
	first, ok := result[0].(map[string]any)
	if !ok {
		return Outcome{Status: StatusPending, Raw: raw}
	}
	text, ok := first["text"].(string)
	if !ok || text == "" {
		return Outcome{Status: StatusPending, Raw: raw}
	}
	return Outcome{Status: StatusCompleted, Raw: raw, Payload: output, Result: text}
}
