package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scanlab/internal/pipeline"
	"scanlab/internal/uploads"
	"scanlab/internal/views"
	"scanlab/pkg/logging/logging"
)

const (
	flashNoFilePart  = "No file part"
	flashNoSelected  = "No selected file"
	flashInvalidType = "Invalid file type. Only PNG and TIFF are allowed."
	flashTooLarge    = "File is too large."

	multipartMemory = 32 << 20
)

// shortcuts are offered right after an upload.
var shortcuts = []views.Shortcut{
	{Action: "/parse/" + string(pipeline.LLaVA), Label: "Parse with LLaVA"},
	{Action: "/parse/" + string(pipeline.OCRGemma3), Label: "OCR + Gemma3"},
	{Action: "/parse/" + string(pipeline.OCRLlama3), Label: "OCR + Llama3"},
}

// Index handles GET /.
func (h *DocumentHandler) Index(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)
	h.render(w, r, sess, views.PageIndex, views.IndexPage{
		Layout: views.Layout{Flashes: sess.PopFlashes()},
		Files:  h.listFiles(r.Context()),
	})
}

// Upload handles POST /: stores the file and offers the parse shortcuts.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	sess := h.sessions.Load(r)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.flashRedirect(w, r, sess, flashTooLarge, "/")
			return
		}
		h.flashRedirect(w, r, sess, flashNoFilePart, "/")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		// an empty file input arrives as a plain value
		msg := flashNoFilePart
		if _, ok := r.MultipartForm.Value["file"]; ok {
			msg = flashNoSelected
		}
		h.flashRedirect(w, r, sess, msg, "/")
		return
	}
	defer file.Close()

	filename, err := h.files.Save(header.Filename, file)
	switch {
	case errors.Is(err, uploads.ErrNoFile):
		h.flashRedirect(w, r, sess, flashNoSelected, "/")
		return
	case errors.Is(err, uploads.ErrExtension), errors.Is(err, uploads.ErrInvalidFilename):
		h.flashRedirect(w, r, sess, flashInvalidType, "/")
		return
	case err != nil:
		logger.Error("upload_save_error", zap.String("filename", header.Filename), zap.Error(err))
		h.flashRedirect(w, r, sess, genericFlash, "/")
		return
	}

	logger.Info("upload_stored",
		zap.String("filename", filename),
		zap.Int64("size", header.Size),
	)

	h.render(w, r, sess, views.PageChoose, views.ChoosePage{
		Layout:    views.Layout{Flashes: sess.PopFlashes()},
		Filename:  filename,
		Shortcuts: shortcuts,
	})
}

// ServeUpload handles GET /uploads/{filename}.
func (h *DocumentHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	path, err := h.files.Path(chi.URLParam(r, "filename"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}
