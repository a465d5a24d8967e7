package views

import (
	"embed"
	"html/template"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var files embed.FS

// Load parses the embedded templates into the router.
func Load(router *gin.Engine, siteTitle string) {
	tmpl := template.Must(template.New("").Funcs(FuncMap(siteTitle)).ParseFS(files, "templates/*.html"))
	router.SetHTMLTemplate(tmpl)
}

func FuncMap(siteTitle string) template.FuncMap {
	return template.FuncMap{
		"now": func() time.Time {
			return time.Now()
		},
		"siteTitle": func() string {
			return siteTitle
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("January 2, 2006")
		},
		"join": strings.Join,
	}
}
