// Package views renders the HTML pages of the site through gin's renderer.
package views

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/inflection"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cppla/newspaper/config"
	"github.com/cppla/newspaper/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

var titleCaser = cases.Title(language.English)

// FuncMap holds the helpers available to every template.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"title": func(s string) string { return titleCaser.String(s) },
		"plural": func(n int64, word string) string {
			if n == 1 {
				return "1 " + word
			}
			return fmt.Sprintf("%d %s", n, inflection.Plural(word))
		},
		"date": func(t time.Time) string { return t.Format("02.01.2006 15:04") },
		"day":  func(t time.Time) string { return t.Format("2006-01-02") },
		// safe marks post text, sanitized on save, as trusted HTML.
		"safe": func(s string) template.HTML { return template.HTML(s) },
		"pageURL": func(query url.Values, page int) string {
			q := url.Values{}
			for k, v := range query {
				q[k] = v
			}
			q.Set("page", strconv.Itoa(page))
			return "?" + q.Encode()
		},
		"hasID": func(ids []uint, id uint) bool {
			for _, v := range ids {
				if v == id {
					return true
				}
			}
			return false
		},
	}
}

// Load parses the embedded templates.
func Load() (*template.Template, error) {
	return template.New("").Funcs(FuncMap()).ParseFS(templateFS, "templates/*.html")
}

// MustLoad is Load for boot code.
func MustLoad() *template.Template {
	return template.Must(Load())
}

// Render writes the named page. Request-scoped values shared by the layout are merged into data.
func Render(ctx *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	cfg := config.Get()
	data["site_name"] = cfg.App.SiteName
	data["path"] = ctx.Request.URL.Path
	if u, ok := ctx.Get(utils.CtxUser); ok {
		data["user"] = u
		data["is_authenticated"] = true
	} else {
		data["is_authenticated"] = false
	}
	if tok, ok := ctx.Get(utils.CtxCSRFToken); ok {
		data["csrf_token"] = tok
	}
	ctx.HTML(status, name, data)
}

// Error renders the error page and stops the handler chain.
func Error(ctx *gin.Context, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	Render(ctx, status, "error.html", gin.H{
		"status":  status,
		"title":   http.StatusText(status),
		"message": message,
	})
	ctx.Abort()
}

//go:embed static
var staticFS embed.FS

// Static returns the embedded stylesheet directory for gin's StaticFS.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
