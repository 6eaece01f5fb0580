package agent

import (
	"strings"
	"testing"
)

func TestBuildSystemPrompt(t *testing.T) {
	tc := testContext(t, script())

	prompt := BuildSystemPrompt(tc)
	for _, want := range []string{
		"sequenceComplete",
		"shellStart",
		"agentStart",
		"respawn",
		tc.WorkingDir,
		"Available tools: " + strings.Join(tc.Tools.Names(), ", "),
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected %q in the system prompt", want)
		}
	}
}

func TestBuildEnvironmentContext(t *testing.T) {
	block := BuildEnvironmentContext(t.TempDir())

	if !strings.HasPrefix(block, "<environment>\n") || !strings.HasSuffix(block, "</environment>") {
		t.Errorf("expected a delimited block, got %q", block)
	}
	for _, want := range []string{"Working directory: ", "Is git repository: ", "Platform: ", "Today's date: "} {
		if !strings.Contains(block, want) {
			t.Errorf("expected %q in the environment block", want)
		}
	}
	// A fresh temp dir is not a repository, so no branch line appears.
	if strings.Contains(block, "Git branch:") {
		t.Errorf("unexpected branch line: %q", block)
	}
}

func TestBuildSubAgentPrompt(t *testing.T) {
	prompt := BuildSubAgentPrompt(
		"refactor the parser",
		"Go module, table-driven tests",
		[]string{"parser.go", "parser_test.go"},
		false,
	)

	for _, want := range []string{
		"Complete the following goal:",
		"refactor the parser",
		"Project context:\nGo module, table-driven tests",
		"- parser.go\n",
		"- parser_test.go\n",
		"Work autonomously",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected %q in the prompt", want)
		}
	}
}

func TestBuildSubAgentPromptMinimal(t *testing.T) {
	prompt := BuildSubAgentPrompt("just the goal", "", nil, true)

	if !strings.Contains(prompt, "just the goal") {
		t.Errorf("expected the goal, got %q", prompt)
	}
	if strings.Contains(prompt, "Project context:") || strings.Contains(prompt, "Relevant files:") {
		t.Errorf("unexpected optional sections: %q", prompt)
	}
	// userPromptAllowed drops the autonomy clause.
	if strings.Contains(prompt, "Work autonomously") {
		t.Errorf("unexpected autonomy clause: %q", prompt)
	}
}
