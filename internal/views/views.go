// Package views renders the HTML pages and the markdown returned by models.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	PageIndex     = "index.html"
	PageChoose    = "choose.html"
	PageDocuments = "documents.html"
	PageParse     = "parse.html"
)

// Layout is embedded by every page.
type Layout struct {
	Flashes []string
}

type IndexPage struct {
	Layout
	Files []string
}

type Shortcut struct {
	Action string
	Label  string
}

type ChoosePage struct {
	Layout
	Filename  string
	Shortcuts []Shortcut
}

type FileOption struct {
	Name     string
	Selected bool
}

type PipelineOption struct {
	ID      string
	Label   string
	Checked bool
}

type ResultView struct {
	Key      string
	Filename string
	Label    string
	Response string
	Cached   bool
}

type CompareOption struct {
	Key       string
	Label     string
	SelectedA bool
	SelectedB bool
}

type CompareSide struct {
	Filename string
	Label    string
	Response string
}

type ComparisonView struct {
	Left, Right CompareSide
}

type DocumentsPage struct {
	Layout
	Files     []FileOption
	Pipelines []PipelineOption
	Results   []ResultView

	// Comparison form; empty with fewer than two results.
	CompareOptions []CompareOption
	FilesJoined    string
	CombosJoined   string

	Comparison *ComparisonView
}

type ParsePage struct {
	Layout
	Title     string
	Filename  string
	ShowImage bool
	ShowOCR   bool
	OCRText   string
	Result    string
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
	md    goldmark.Markdown
}

func New() (*Renderer, error) {
	r := &Renderer{
		pages: make(map[string]*template.Template),
		md:    goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
	funcs := template.FuncMap{"markdown": r.Markdown}

	for _, page := range []string{PageIndex, PageChoose, PageDocuments, PageParse} {
		t, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("views: parse %s: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

// Render executes page into a buffer first so a template error never leaves
// a half-written response.
func (r *Renderer) Render(w io.Writer, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("views: unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("views: render %s: %w", page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Markdown converts model output to HTML. Raw HTML in the source is not
// passed through.
func (r *Renderer) Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}
