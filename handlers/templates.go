package handlers

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"seg": pathSegment,
	// withTitle copies the page data and adds the title the layout shows
	"withTitle": func(data map[string]interface{}, title string) map[string]interface{} {
		out := make(map[string]interface{}, len(data)+1)
		for k, v := range data {
			out[k] = v
		}
		out["title"] = title
		return out
	},
}

// LoadTemplates parses the embedded page templates. Pages are named after
// their file, e.g. "home.html".
func LoadTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
}
