package agent

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// BuildSystemPrompt renders the default system prompt for an agent scope:
// the agent's role, the tool-calling contract, the rules for background
// work, and a structured environment block.
func BuildSystemPrompt(tc *ToolContext) string {
	var b strings.Builder

	b.WriteString("You are an autonomous coding agent. You work by calling tools; plain text responses are notes to yourself and do not advance the task.\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Every response should include at least one tool call.\n")
	b.WriteString("- When the task is done, call sequenceComplete with a result summarizing what you accomplished. This is the only way to finish.\n")
	b.WriteString("- shellStart runs a command. If it finishes within the timeout you get its output directly; otherwise it keeps running in the background and you get an instance id.\n")
	b.WriteString("- Poll background processes with shellMessage. Use it to send stdin or signals as well. Do not busy-poll; call sleep between polls.\n")
	b.WriteString("- Delegate independent subtasks with agentStart and collect results with agentMessage. Terminate agents you no longer need.\n")
	b.WriteString("- If your context has become confused or poisoned, call respawn with a respawnContext that restates the task and what is already done. You lose everything else.\n\n")

	b.WriteString(BuildEnvironmentContext(tc.WorkingDir))

	if tc.Tools != nil {
		b.WriteString("\n\nAvailable tools: ")
		b.WriteString(strings.Join(tc.Tools.Names(), ", "))
	}

	b.WriteString("\n")
	return b.String()
}

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(workingDir string) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	isRepo := isGitRepository(workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isRepo)
	if isRepo {
		if branch := gitBranch(workingDir); branch != "" {
			fmt.Fprintf(&sb, "Git branch: %s\n", branch)
		}
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	sb.WriteString("</environment>")
	return sb.String()
}

// BuildSubAgentPrompt composes the task prompt handed to a sub-agent from
// the spawning call's arguments.
func BuildSubAgentPrompt(goal, projectContext string, relevantFiles []string, userPromptAllowed bool) string {
	var b strings.Builder
	b.WriteString("Complete the following goal:\n\n")
	b.WriteString(goal)
	b.WriteString("\n")

	if projectContext != "" {
		b.WriteString("\nProject context:\n")
		b.WriteString(projectContext)
		b.WriteString("\n")
	}
	if len(relevantFiles) > 0 {
		b.WriteString("\nRelevant files:\n")
		for _, f := range relevantFiles {
			b.WriteString("- " + f + "\n")
		}
	}
	if !userPromptAllowed {
		b.WriteString("\nWork autonomously; no user is available to answer questions. Make reasonable decisions and report them in your result.\n")
	}
	return b.String()
}

func isGitRepository(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

func gitBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
