package logparse

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmericli/claude-remote/internal/model"
)

// toolEventMap maps tool names to file event types.
var toolEventMap = map[string]string{
	"Read":  model.EventRead,
	"Glob":  model.EventRead,
	"Grep":  model.EventRead,
	"Write": model.EventCreate,
	"Edit":  model.EventEdit,
	"Bash":  model.EventBash,
}

// toolSummaryField maps tool names to the input field worth surfacing.
var toolSummaryField = map[string]string{
	"Read":       "file_path",
	"Write":      "file_path",
	"Edit":       "file_path",
	"Bash":       "command",
	"Grep":       "pattern",
	"Glob":       "pattern",
	"Task":       "subject",
	"TaskCreate": "subject",
	"TaskUpdate": "description",
}

const (
	summaryMaxLen     = 80
	taskSummaryMaxLen = 60
	bashEventMaxLen   = 200
)

// summarizeToolInput derives a one-line human summary from a tool_use
// input object. File tools surface the basename, Bash the command, search
// tools the pattern, the Task family subject or description. Unknown
// tools get an empty summary.
func summarizeToolInput(toolName string, input json.RawMessage) string {
	fields := decodeInput(input)
	if fields == nil {
		return ""
	}

	field, known := toolSummaryField[toolName]
	if !known {
		return ""
	}

	val := stringField(fields, field)
	if val == "" && isTaskTool(toolName) {
		val = stringField(fields, "subject")
		if val == "" {
			val = stringField(fields, "description")
		}
	}

	switch toolName {
	case "Read", "Write", "Edit":
		val = filepath.Base(val)
	}

	max := summaryMaxLen
	if isTaskTool(toolName) {
		max = taskSummaryMaxLen
	}
	return truncate(strings.TrimSpace(val), max)
}

// fileEventFromTool derives a file event from a tool_use block. File
// tools record the path; Bash records the command itself, capped.
func fileEventFromTool(sessionID, toolName string, input json.RawMessage, ts time.Time) (model.FileEvent, bool) {
	eventType, ok := toolEventMap[toolName]
	if !ok {
		return model.FileEvent{}, false
	}

	fields := decodeInput(input)
	if fields == nil {
		return model.FileEvent{}, false
	}

	var path string
	switch toolName {
	case "Read", "Write", "Edit":
		path = stringField(fields, "file_path")
	case "Glob", "Grep":
		path = stringField(fields, "path")
	case "Bash":
		path = truncate(stringField(fields, "command"), bashEventMaxLen)
	}
	if path == "" {
		return model.FileEvent{}, false
	}

	return model.FileEvent{
		SessionID: sessionID,
		FilePath:  path,
		EventType: eventType,
		Timestamp: ts,
	}, true
}

func isTaskTool(name string) bool {
	return name == "Task" || name == "TaskCreate" || name == "TaskUpdate"
}

func decodeInput(input json.RawMessage) map[string]json.RawMessage {
	if len(input) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(input, &fields); err != nil {
		return nil
	}
	return fields
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
