package views

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, page string, data any) string {
	t.Helper()
	r, err := New()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, page, data))
	return buf.String()
}

func TestMarkdownTable(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	out := string(r.Markdown("| Field | Value |\n|---|---|\n| Patient ID | 42 |\n"))
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>Patient ID</td>")
}

func TestMarkdownDropsRawHTML(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	out := string(r.Markdown("<script>alert(1)</script>"))
	assert.NotContains(t, out, "<script>")
}

func TestIndexPage(t *testing.T) {
	out := render(t, PageIndex, IndexPage{
		Layout: Layout{Flashes: []string{"No selected file"}},
		Files:  []string{"a.png"},
	})
	assert.Contains(t, out, "<li>No selected file</li>")
	assert.Contains(t, out, `href="/uploads/a.png"`)

	empty := render(t, PageIndex, IndexPage{})
	assert.Contains(t, empty, "No files uploaded yet.")
	assert.NotContains(t, empty, `class="flashes"`)
}

func TestDocumentsPageEscapesResponse(t *testing.T) {
	out := render(t, PageDocuments, DocumentsPage{
		Files:     []FileOption{{Name: "a.png", Selected: true}, {Name: "b.png"}},
		Pipelines: []PipelineOption{{ID: "ocr", Label: "OCR Only", Checked: true}},
		Results: []ResultView{{
			Key: "result:s:a.png:ocr", Filename: "a.png", Label: "OCR Only",
			Response: "<b>raw</b>",
		}},
	})

	assert.Contains(t, out, `<option value="a.png" selected>`)
	assert.Contains(t, out, `<option value="b.png">`)
	assert.Contains(t, out, `value="ocr" checked`)
	assert.Contains(t, out, "&lt;b&gt;raw&lt;/b&gt;")
	assert.NotContains(t, out, "Compare results")
}

func TestDocumentsPageComparison(t *testing.T) {
	out := render(t, PageDocuments, DocumentsPage{
		CompareOptions: []CompareOption{
			{Key: "result:s:a.png:ocr", Label: "a.png - OCR Only", SelectedA: true},
			{Key: "result:s:a.png:llava", Label: "a.png - LLaVA Only", SelectedB: true},
		},
		FilesJoined:  "a.png",
		CombosJoined: "ocr,llava",
		Comparison: &ComparisonView{
			Left:  CompareSide{Filename: "a.png", Label: "OCR Only", Response: "left text"},
			Right: CompareSide{Filename: "a.png", Label: "LLaVA Only", Response: "right text"},
		},
	})

	assert.Contains(t, out, `name="combos" value="ocr,llava"`)
	assert.Contains(t, out, `name="compare_a"`)
	assert.Contains(t, out, `class="compare"`)
	assert.Equal(t, 1, strings.Count(out, "left text</pre>"))
	assert.Equal(t, 1, strings.Count(out, "right text</pre>"))
}

func TestParsePage(t *testing.T) {
	out := render(t, PageParse, ParsePage{
		Title: "OCR + Gemma3", Filename: "lab.png",
		ShowImage: true, ShowOCR: true, OCRText: "Patient ID 42", Result: "done",
	})
	assert.Contains(t, out, `src="/uploads/lab.png"`)
	assert.Contains(t, out, "Patient ID 42")
	assert.Contains(t, out, "Parsed Document")

	plain := render(t, PageParse, ParsePage{Title: "LLaVA Inference Result", Result: "described"})
	assert.NotContains(t, plain, "Scanned Image")
	assert.Contains(t, plain, "<h2>LLaVA Inference Result</h2>")
}

func TestRenderUnknownPage(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	assert.Error(t, r.Render(&bytes.Buffer{}, "missing.html", nil))
}
