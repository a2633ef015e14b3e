package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"inmoelegance/internal/core"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const layoutTemplate = "templates/layout.html"

// renderer holds one template set per page, each sharing the layout.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer(md *markdown) (*renderer, error) {
	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	funcs := templateFuncs(md)
	r := &renderer{pages: make(map[string]*template.Template, len(files))}
	for _, file := range files {
		if file == layoutTemplate {
			continue
		}
		name := strings.TrimSuffix(path.Base(file), ".html")
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, layoutTemplate, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// render executes the page into a buffer so template failures never produce
// a partial response.
func (r *renderer) render(w http.ResponseWriter, status int, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// markdown renders listing descriptions and strips unsafe HTML.
type markdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func newMarkdown() *markdown {
	return &markdown{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
}

func (m *markdown) HTML(source string) template.HTML {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(m.policy.SanitizeBytes(buf.Bytes()))
}

var sortLabels = map[core.SortKey]string{
	core.SortPriceDesc: "Precio (mayor a menor)",
	core.SortPriceAsc:  "Precio (menor a mayor)",
	core.SortRating:    "Mejor valoradas",
	core.SortArea:      "Mayor superficie",
	core.SortNewest:    "Más recientes",
}

func templateFuncs(md *markdown) template.FuncMap {
	return template.FuncMap{
		"price": formatPrice,
		"number": func(v float64) string {
			return humanize.Commaf(math.Round(v*100) / 100)
		},
		"markdown": md.HTML,
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("02/01/2006 15:04")
		},
		"ago":       humanize.Time,
		"sortLabel": func(k core.SortKey) string { return sortLabels[k] },
		"join":      strings.Join,
		"lines":     func(items []string) string { return strings.Join(items, "\n") },
		"add":       func(a, b int) int { return a + b },
		"stars": func(rating float64) string {
			full := int(math.Round(rating))
			return strings.Repeat("★", full) + strings.Repeat("☆", max(0, 5-full))
		},
	}
}

// formatPrice renders "USD 450,000" style prices. Cents are shown only when
// present.
func formatPrice(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	if amount == math.Trunc(amount) {
		return currency + " " + humanize.Commaf(amount)
	}
	return currency + " " + humanize.FormatFloat("#,###.##", amount)
}
