package agent

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how oversized tool output is cut.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Default character limits per tool. Callers override individual tools via
// LoopConfig.ToolOutputLimits.
var DefaultToolCharLimits = map[string]int{
	"readFile":     50000,
	"shellStart":   30000,
	"shellMessage": 30000,
	"grep":         20000,
	"glob":         20000,
	"editFile":     10000,
	"writeFile":    1000,
	"agentMessage": 20000,
	"browserAct":   20000,
}

// Default truncation modes per tool.
var DefaultTruncationModes = map[string]TruncationMode{
	"readFile":     TruncateHeadTail,
	"shellStart":   TruncateHeadTail,
	"shellMessage": TruncateHeadTail,
	"grep":         TruncateTail,
	"glob":         TruncateTail,
	"editFile":     TruncateTail,
	"writeFile":    TruncateTail,
	"agentMessage": TruncateHeadTail,
	"browserAct":   TruncateHeadTail,
}

// Default line limits per tool, applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	"shellStart":   256,
	"shellMessage": 256,
	"grep":         200,
	"glob":         500,
}

const fallbackCharLimit = 30000

// toolCharLimit returns the effective character limit for a tool.
func toolCharLimit(toolName string, overrides map[string]int) int {
	if limit, ok := overrides[toolName]; ok {
		return limit
	}
	if limit, ok := DefaultToolCharLimits[toolName]; ok {
		return limit
	}
	return fallbackCharLimit
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[WARNING: Output was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	default:
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[WARNING: Output was truncated. %d characters were removed from the middle. "+
				"Re-run the tool with more targeted parameters to see specific parts.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies the full truncation pipeline for a tool:
// character-based truncation first (bounds pathological cases), then
// line-based truncation for readability. Tools run their string fields
// through it before assembling the JSON payload, so payloads stay valid.
func TruncateToolOutput(output, toolName string, charLimits, lineLimits map[string]int) string {
	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, toolCharLimit(toolName, charLimits), mode)

	maxLines := 0
	if ml, ok := lineLimits[toolName]; ok {
		maxLines = ml
	} else if ml, ok := DefaultToolLineLimits[toolName]; ok {
		maxLines = ml
	}
	if maxLines > 0 {
		result = TruncateLines(result, maxLines)
	}
	return result
}
