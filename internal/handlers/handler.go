package handlers

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"scanlab/internal/pipeline"
	"scanlab/internal/session"
	"scanlab/pkg/logging/logging"
)

const genericFlash = "Something went wrong. Please try again."

// Runner executes pipelines through the result cache.
type Runner interface {
	Run(ctx context.Context, sessionID, filename string, id pipeline.ID) (pipeline.Record, error)
	RunBatch(ctx context.Context, sessionID string, filenames []string, ids []pipeline.ID) ([]pipeline.Record, error)
}

// Comparer resolves the two sides of the comparison view.
type Comparer interface {
	Resolve(ctx context.Context, current map[string]pipeline.Record, keyA, keyB string) pipeline.Comparison
}

// FileStore is the upload directory.
type FileStore interface {
	List() ([]string, error)
	Save(name string, r io.Reader) (string, error)
	Path(filename string) (string, error)
}

type Sessions interface {
	Load(r *http.Request) *session.Session
	Save(w http.ResponseWriter, s *session.Session) error
}

type Renderer interface {
	Render(w io.Writer, page string, data any) error
}

// Deps are the collaborators of DocumentHandler, built in main.
type Deps struct {
	Runner   Runner
	Comparer Comparer
	Files    FileStore
	Sessions Sessions
	Views    Renderer
}

// DocumentHandler serves the upload, processing and comparison pages.
type DocumentHandler struct {
	runner   Runner
	comparer Comparer
	files    FileStore
	sessions Sessions
	views    Renderer
}

func NewDocumentHandler(d Deps) *DocumentHandler {
	return &DocumentHandler{
		runner:   d.Runner,
		comparer: d.Comparer,
		files:    d.Files,
		sessions: d.Sessions,
		views:    d.Views,
	}
}

// render writes the session cookie, then the page.
func (h *DocumentHandler) render(w http.ResponseWriter, r *http.Request, sess *session.Session, page string, data any) {
	logger := logging.L(r.Context())
	if err := h.sessions.Save(w, sess); err != nil {
		logger.Warn("session_save_error", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.views.Render(w, page, data); err != nil {
		logger.Error("render_error", zap.String("page", page), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// flashRedirect queues msg and sends the browser to target.
func (h *DocumentHandler) flashRedirect(w http.ResponseWriter, r *http.Request, sess *session.Session, msg, target string) {
	sess.AddFlash(msg)
	if err := h.sessions.Save(w, sess); err != nil {
		logging.L(r.Context()).Warn("session_save_error", zap.Error(err))
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// listFiles never fails the page; an unreadable upload dir shows as empty.
func (h *DocumentHandler) listFiles(ctx context.Context) []string {
	files, err := h.files.List()
	if err != nil {
		logging.L(ctx).Error("upload_list_error", zap.Error(err))
		return nil
	}
	return files
}
