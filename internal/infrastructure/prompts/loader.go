package prompts

import (
	_ "embed"
)

//go:embed solver_system.txt
var SolverSystemPrompt string

//go:embed solver_user.tmpl
var solverUserTemplate string
