package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"scanlab/internal/pipeline"
	"scanlab/internal/session"
	"scanlab/internal/uploads"
	"scanlab/internal/views"
	"scanlab/pkg/logging/logging"
)

var shortcutTitles = map[pipeline.ID]string{
	pipeline.LLaVA:     "LLaVA Inference Result",
	pipeline.OCRGemma3: "OCR + Gemma3",
	pipeline.OCRLlama3: "OCR + Llama3 Result",
}

// Parse returns the handler for POST /parse/{id}, which runs one fixed
// pipeline on form field filename. The OCR + Gemma3 page also shows the
// image and the OCR text.
func (h *DocumentHandler) Parse(id pipeline.ID) http.HandlerFunc {
	withOCR := id == pipeline.OCRGemma3

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := h.sessions.Load(r)

		filename := r.PostFormValue("filename")
		if filename == "" {
			h.flashRedirect(w, r, sess, flashNoSelected, "/")
			return
		}

		page := views.ParsePage{
			Title:     shortcutTitles[id],
			Filename:  filename,
			ShowImage: withOCR,
			ShowOCR:   withOCR,
		}

		if withOCR {
			ocrRec, err := h.runner.Run(ctx, sess.ID, filename, pipeline.OCR)
			if err != nil {
				h.parseFailed(w, r, sess, filename, err)
				return
			}
			page.OCRText = ocrRec.Response
		}

		rec, err := h.runner.Run(ctx, sess.ID, filename, id)
		if err != nil {
			h.parseFailed(w, r, sess, filename, err)
			return
		}
		page.Result = rec.Response
		page.Layout = views.Layout{Flashes: sess.PopFlashes()}

		h.render(w, r, sess, views.PageParse, page)
	}
}

func (h *DocumentHandler) parseFailed(w http.ResponseWriter, r *http.Request, sess *session.Session, filename string, err error) {
	if errors.Is(err, uploads.ErrNotFound) || errors.Is(err, uploads.ErrInvalidFilename) {
		h.flashRedirect(w, r, sess, "File not found.", "/")
		return
	}
	logging.L(r.Context()).Error("parse_run_error", zap.String("filename", filename), zap.Error(err))
	h.flashRedirect(w, r, sess, genericFlash, "/")
}
