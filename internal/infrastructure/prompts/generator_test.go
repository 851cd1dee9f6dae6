package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSolvePrompt_QuestionOnly(t *testing.T) {
	prompt, err := GenerateSolvePrompt(SolveData{Question: "What is 2+2?"})

	require.NoError(t, err)
	assert.Contains(t, prompt, "QUESTION:\nWhat is 2+2?")
	assert.Contains(t, prompt, "No additional resources provided.")
	assert.Contains(t, prompt, "ANSWER: <value>")
	assert.NotContains(t, prompt, "rejected")
}

func TestGenerateSolvePrompt_ResourceSections(t *testing.T) {
	prompt, err := GenerateSolvePrompt(SolveData{
		Question: "Sum the values.",
		Resources: []ResourceSection{
			{Label: "data.csv (text/csv)", Text: "a,1\nb,2"},
			{Label: "table from the quiz page", Text: "x | y"},
		},
	})

	require.NoError(t, err)
	assert.Contains(t, prompt, "=== AVAILABLE RESOURCES ===")
	assert.Contains(t, prompt, "--- data.csv (text/csv) ---")
	assert.Contains(t, prompt, "a,1\nb,2")
	assert.Contains(t, prompt, "--- table from the quiz page ---")
	assert.NotContains(t, prompt, "No additional resources provided.")
}

func TestGenerateSolvePrompt_RejectedAnswers(t *testing.T) {
	prompt, err := GenerateSolvePrompt(SolveData{
		Question: "2+2?",
		Rejected: []string{"3", "5"},
	})

	require.NoError(t, err)
	assert.Contains(t, prompt, "already rejected as incorrect")
	assert.Contains(t, prompt, "- 3")
	assert.Contains(t, prompt, "- 5")
}

func TestSolverSystemPrompt_Embedded(t *testing.T) {
	assert.NotEmpty(t, SolverSystemPrompt)
	assert.Contains(t, SolverSystemPrompt, "ANSWER: <value>")
	assert.True(t, strings.Contains(SolverSystemPrompt, "resource unavailable"))
}
