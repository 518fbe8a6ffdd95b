package extract

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

var userTemplate = template.Must(template.New("user").Parse(userPromptTmpl))

// SystemPrompt returns the system prompt for batch extraction.
func SystemPrompt() string {
	return systemPrompt
}

type promptPage struct {
	Number  int
	Content string
	Tables  []string
}

type promptData struct {
	ProjectContext string
	Document       string
	Batch          int
	TotalBatches   int
	FirstPage      int
	LastPage       int
	Pages          []promptPage
}

// userPrompt renders the user prompt for one batch.
func userPrompt(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
