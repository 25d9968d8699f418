package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"scanlab/internal/pipeline"
	"scanlab/internal/uploads"
	"scanlab/internal/views"
	"scanlab/pkg/logging/logging"
)

// Documents handles GET and POST /documents. POST runs every selected
// pipeline on every selected file and, given compare_a and compare_b,
// renders the two results side by side.
func (h *DocumentHandler) Documents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := h.sessions.Load(r)

	var (
		files   []string
		ids     []pipeline.ID
		records []pipeline.Record
	)

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.flashRedirect(w, r, sess, "Invalid form submission.", "/documents")
			return
		}
		files = splitValues(r.PostForm["files"])
		ids = pipeline.ParseIDs(r.PostForm["combos"])

		var err error
		records, err = h.runner.RunBatch(ctx, sess.ID, files, ids)
		if err != nil {
			if errors.Is(err, uploads.ErrNotFound) || errors.Is(err, uploads.ErrInvalidFilename) {
				h.flashRedirect(w, r, sess, "File not found.", "/documents")
				return
			}
			logging.L(ctx).Error("documents_run_error", zap.Error(err))
			h.flashRedirect(w, r, sess, genericFlash, "/documents")
			return
		}
	}

	page := views.DocumentsPage{
		Layout:       views.Layout{Flashes: sess.PopFlashes()},
		Files:        fileOptions(h.listFiles(ctx), files),
		Pipelines:    pipelineOptions(ids),
		Results:      resultViews(records),
		FilesJoined:  strings.Join(files, ","),
		CombosJoined: joinIDs(ids),
	}

	if len(records) >= 2 {
		keyA := r.PostForm.Get("compare_a")
		keyB := r.PostForm.Get("compare_b")
		page.CompareOptions = compareOptions(records, keyA, keyB)

		if keyA != "" && keyB != "" {
			cmp := h.comparer.Resolve(ctx, pipeline.Index(records), keyA, keyB)
			page.Comparison = &views.ComparisonView{
				Left:  compareSide(cmp.Left),
				Right: compareSide(cmp.Right),
			}
		}
	}

	h.render(w, r, sess, views.PageDocuments, page)
}

// splitValues accepts repeated fields and comma-joined fields alike.
func splitValues(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}

func joinIDs(ids []pipeline.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}

func fileOptions(all, selected []string) []views.FileOption {
	sel := make(map[string]bool, len(selected))
	for _, f := range selected {
		sel[f] = true
	}
	opts := make([]views.FileOption, len(all))
	for i, f := range all {
		opts[i] = views.FileOption{Name: f, Selected: sel[f]}
	}
	return opts
}

func pipelineOptions(checked []pipeline.ID) []views.PipelineOption {
	on := make(map[pipeline.ID]bool, len(checked))
	for _, id := range checked {
		on[id] = true
	}
	catalog := pipeline.Catalog()
	opts := make([]views.PipelineOption, len(catalog))
	for i, d := range catalog {
		opts[i] = views.PipelineOption{ID: string(d.ID), Label: d.Label, Checked: on[d.ID]}
	}
	return opts
}

func resultViews(records []pipeline.Record) []views.ResultView {
	out := make([]views.ResultView, len(records))
	for i, rec := range records {
		out[i] = views.ResultView{
			Key:      rec.Key,
			Filename: rec.Filename,
			Label:    rec.Label,
			Response: rec.Response,
			Cached:   rec.Cached,
		}
	}
	return out
}

// compareOptions preselects the submitted keys, or the first two results.
func compareOptions(records []pipeline.Record, keyA, keyB string) []views.CompareOption {
	if keyA == "" {
		keyA = records[0].Key
	}
	if keyB == "" {
		keyB = records[1].Key
	}
	opts := make([]views.CompareOption, len(records))
	for i, rec := range records {
		opts[i] = views.CompareOption{
			Key:       rec.Key,
			Label:     rec.Filename + " - " + rec.Label,
			SelectedA: rec.Key == keyA,
			SelectedB: rec.Key == keyB,
		}
	}
	return opts
}

func compareSide(s pipeline.Side) views.CompareSide {
	return views.CompareSide{Filename: s.Filename, Label: s.Label, Response: s.Response}
}
