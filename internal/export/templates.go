package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var requestTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/request.html")
	if err != nil {
		// Fallback to built-in template if file not found
		requestTemplate = template.Must(template.New("request").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	requestTemplate = template.Must(template.New("request").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for request template rendering
type TemplateData struct {
	Title         string
	Kind          string
	Status        string
	RequesterName string
	CreatedAt     time.Time
	Summary       string
	Body          string
	Justification string
	Stages        []TemplateStage
	References    []TemplateReference
	Timeline      []TemplateTimelineItem
}

// TemplateStage holds stage data for the template
type TemplateStage struct {
	Number    int
	Status    string
	Approvers []TemplateApprover
}

// TemplateApprover holds approver data for the template
type TemplateApprover struct {
	Name      string
	Position  string
	Status    string
	DecidedAt string
}

// TemplateReference holds reference data for the template
type TemplateReference struct {
	Name     string
	Position string
}

// TemplateTimelineItem holds one timeline entry for the template
type TemplateTimelineItem struct {
	When    string
	Actor   string
	Label   string
	Content string
}

// RenderRequestHTML renders the request template with provided data
func RenderRequestHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := requestTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .stage { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.RequesterName}} | {{.Kind}} | {{.Status}} | {{.CreatedAt.Format "Jan 2, 2006"}}</div>
  {{if .Summary}}<p>{{.Summary}}</p>{{end}}
  {{if .Body}}<div>{{.Body}}</div>{{end}}
  {{range .Stages}}<div class="stage">Stage {{.Number}}: {{.Status}}</div>{{end}}
</body>
</html>`
