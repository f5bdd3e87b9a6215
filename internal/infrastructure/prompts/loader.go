package prompts

import (
	_ "embed"
)

//go:embed system.txt
var SystemPrompt string

//go:embed context.tmpl
var contextTemplate string
