package prompts

import (
	"bytes"
	"text/template"
)

type ResourceSection struct {
	Label string
	Text  string
}

type SolveData struct {
	Question  string
	Resources []ResourceSection
	Rejected  []string
}

var solverTmpl = template.Must(template.New("solver_user").Parse(solverUserTemplate))

// GenerateSolvePrompt renders the user prompt for one solve attempt.
func GenerateSolvePrompt(data SolveData) (string, error) {
	var buf bytes.Buffer
	if err := solverTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
