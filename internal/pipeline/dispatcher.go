package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"scanlab/internal/backend"
	"scanlab/internal/cache"
	"scanlab/internal/imageconv"
	"scanlab/internal/ocr"
	"scanlab/pkg/logging/logging"
)

// ErrUnknownPipeline is returned for ids missing from the catalog.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// Generator is the local generation backend.
type Generator interface {
	Generate(ctx context.Context, req backend.GenerateRequest) backend.Result
}

// VisionGenerator is the cloud vision backend.
type VisionGenerator interface {
	GeminiConfigured() bool
	GenerateContent(ctx context.Context, req backend.VisionRequest) backend.Result
}

// ResultStore is the session-scoped result cache.
type ResultStore interface {
	Get(ctx context.Context, key cache.ResultKey) (cache.Entry, bool, error)
	Set(ctx context.Context, key cache.ResultKey, e cache.Entry) error
}

// ImageLocator maps a stored filename to its path on disk.
type ImageLocator interface {
	Path(filename string) (string, error)
}

type Config struct {
	// MultimodalModels overrides DefaultMultimodalModels when non-empty.
	MultimodalModels []string
	// TempDir receives converted images; empty means os.TempDir.
	TempDir string
}

// Record is one rendered result.
type Record struct {
	Key      string
	Filename string
	Pipeline ID
	Label    string
	Request  string
	Response string
	Kind     backend.Kind
	Cached   bool
}

// Dispatcher runs pipelines against uploaded images, consulting the result
// cache first.
type Dispatcher struct {
	results    ResultStore
	images     ImageLocator
	ocr        ocr.Engine
	local      Generator
	vision     VisionGenerator
	multimodal map[string]struct{}
	tempDir    string
}

func NewDispatcher(
	results ResultStore,
	images ImageLocator,
	engine ocr.Engine,
	local Generator,
	vision VisionGenerator,
	cfg Config,
) *Dispatcher {
	models := cfg.MultimodalModels
	if len(models) == 0 {
		models = DefaultMultimodalModels
	}
	multimodal := make(map[string]struct{}, len(models))
	for _, m := range models {
		multimodal[m] = struct{}{}
	}

	return &Dispatcher{
		results:    results,
		images:     images,
		ocr:        engine,
		local:      local,
		vision:     vision,
		multimodal: multimodal,
		tempDir:    cfg.TempDir,
	}
}

// RunBatch runs every pipeline on every file, files in the outer loop.
// The returned order is the display order.
func (d *Dispatcher) RunBatch(ctx context.Context, sessionID string, filenames []string, ids []ID) ([]Record, error) {
	records := make([]Record, 0, len(filenames)*len(ids))
	for _, filename := range filenames {
		for _, id := range ids {
			rec, err := d.Run(ctx, sessionID, filename, id)
			if err != nil {
				return records, err
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// Run returns the cached result for (sessionID, filename, id) or computes and
// stores it. Backend failures are part of the Record; the error is only set
// when the pipeline or file does not exist.
func (d *Dispatcher) Run(ctx context.Context, sessionID, filename string, id ID) (Record, error) {
	desc, ok := Lookup(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownPipeline, id)
	}

	start := time.Now()
	key := cache.ResultKey{SessionID: sessionID, Filename: filename, Pipeline: string(id)}
	logger := logging.L(ctx).With(
		zap.String("pipeline", string(id)),
		zap.String("filename", filename),
	)

	entry, hit, err := d.results.Get(ctx, key)
	if err != nil {
		// Cache is best-effort; log and treat as miss.
		logger.Warn("result_cache_get_error", zap.Error(err))
	}
	if hit {
		logger.Info("pipeline_run", zap.Bool("cache_hit", true))
		return recordFrom(key, desc, entry, true), nil
	}

	path, err := d.images.Path(filename)
	if err != nil {
		return Record{}, fmt.Errorf("locate %q: %w", filename, err)
	}

	request, res := d.execute(ctx, desc, path)
	entry = cache.Entry{
		Request:  request,
		Response: res.Display(),
		Filename: filename,
		Pipeline: string(id),
		Kind:     res.Kind,
	}

	// An aborted request says nothing about the backend; keep it out of the cache.
	if ctx.Err() == nil {
		if err := d.results.Set(ctx, key, entry); err != nil {
			logger.Warn("result_cache_set_error", zap.Error(err))
		}
	}

	logRun := logger.Info
	if res.Failed() {
		logRun = logger.Warn
	}
	logRun("pipeline_run",
		zap.Bool("cache_hit", false),
		zap.String("outcome", res.Kind.String()),
		zap.Duration("duration", time.Since(start)),
	)

	return recordFrom(key, desc, entry, false), nil
}

// execute interprets a descriptor. It returns the text sent to the model
// (empty when nothing was sent) and the outcome.
func (d *Dispatcher) execute(ctx context.Context, desc Descriptor, path string) (string, backend.Result) {
	if desc.NeedsOCR {
		text, err := d.ocr.Recognize(ctx, path)
		if err != nil {
			return "", backend.Transport("OCR", err)
		}
		if desc.Backend == BackendNone {
			return "", backend.OK(text)
		}
		if text == "" {
			return "", backend.NoText()
		}
		prompt := desc.Prompt + text
		return prompt, d.local.Generate(ctx, backend.GenerateRequest{
			Model:  desc.Model,
			Family: desc.Family,
			Prompt: prompt,
		})
	}

	switch desc.Backend {
	case BackendLocal:
		if desc.RequiresMultimodal && !d.isMultimodal(desc.Model) {
			return "", backend.Unsupported(refusal(desc.Family))
		}
		img, err := os.ReadFile(path)
		if err != nil {
			return "", backend.Transport("image read", err)
		}
		return desc.Prompt, d.local.Generate(ctx, backend.GenerateRequest{
			Model:  desc.Model,
			Family: desc.Family,
			Prompt: desc.Prompt,
			Images: [][]byte{img},
		})

	case BackendGemini:
		return d.executeVision(ctx, desc, path)
	}

	return "", backend.Unsupported(fmt.Sprintf("pipeline %s has no backend", desc.ID))
}

func (d *Dispatcher) executeVision(ctx context.Context, desc Descriptor, path string) (string, backend.Result) {
	if !d.vision.GeminiConfigured() {
		return "", backend.NotConfigured(backend.GeminiKeyMissing)
	}

	src := path
	if imageconv.IsTIFF(path) {
		pngPath, cleanup, err := imageconv.TIFFToPNG(path, d.tempDir)
		if err != nil {
			return "", backend.Transport("TIFF conversion", err)
		}
		// runs on success, failure and panic alike
		defer cleanup()
		src = pngPath
	}

	img, err := os.ReadFile(src)
	if err != nil {
		return "", backend.Transport("image read", err)
	}

	return desc.Prompt, d.vision.GenerateContent(ctx, backend.VisionRequest{
		Tier:     desc.Tier,
		Family:   desc.Family,
		Prompt:   desc.Prompt,
		MIMEType: imageconv.DetectMIME(src),
		Image:    img,
	})
}

func (d *Dispatcher) isMultimodal(model string) bool {
	_, ok := d.multimodal[model]
	return ok
}

func recordFrom(key cache.ResultKey, desc Descriptor, e cache.Entry, cached bool) Record {
	return Record{
		Key:      key.String(),
		Filename: e.Filename,
		Pipeline: desc.ID,
		Label:    desc.Label,
		Request:  e.Request,
		Response: e.Response,
		Kind:     e.Kind,
		Cached:   cached,
	}
}
