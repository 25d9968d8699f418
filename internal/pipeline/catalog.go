package pipeline

import (
	"fmt"
	"strings"

	"scanlab/internal/backend"
)

// ID is the symbolic pipeline identifier used in forms and cache keys.
type ID string

const (
	OCR            ID = "ocr"
	LLaVA          ID = "llava"
	OCRGemma3      ID = "ocr_gemma3"
	OCRLlama3      ID = "ocr_llama3"
	ImgGemma3      ID = "img_gemma3"
	ImgLlama3      ID = "img_llama3"
	ImgQwen2       ID = "img_qwen2"
	OCRLlama4      ID = "ocr_llama4"
	ImgLlama4      ID = "img_llama4"
	ImgGeminiFlash ID = "img_gemini_flash"
	ImgGeminiPro   ID = "img_gemini_pro"
)

// BackendKind says which adapter a pipeline ends in.
type BackendKind int

const (
	BackendNone BackendKind = iota
	BackendLocal
	BackendGemini
)

// Descriptor is the execution recipe of one pipeline.
type Descriptor struct {
	ID    ID
	Label string

	// NeedsOCR runs Tesseract first and appends its text to Prompt.
	NeedsOCR bool
	Backend  BackendKind
	Model    string
	// Family names the model in user-facing messages.
	Family string
	Prompt string

	// RequiresMultimodal refuses the call unless Model is in the
	// configured multimodal set.
	RequiresMultimodal bool
	Tier               backend.Tier
}

// SendsImage reports whether the pipeline passes the image itself to a model.
func (d Descriptor) SendsImage() bool {
	return d.Backend != BackendNone && !d.NeedsOCR
}

// DefaultMultimodalModels lists the local models that accept image input.
var DefaultMultimodalModels = []string{
	"llava:latest",
	"gemma3:27b-vision",
	"llama3-vision:latest",
	"llama3.2-vision:11b",
	"qwen2.5vl:7b",
	"llama4:latest",
}

// catalog is in display order.
var catalog = []Descriptor{
	{ID: OCR, Label: "OCR Only", NeedsOCR: true, Backend: BackendNone, Family: "OCR"},
	{
		ID: LLaVA, Label: "LLaVA Only",
		Backend: BackendLocal, Model: "llava:latest", Family: "LLaVA",
		Prompt: describeImagePrompt, RequiresMultimodal: true,
	},
	{
		ID: OCRGemma3, Label: "OCR + Gemma3", NeedsOCR: true,
		Backend: BackendLocal, Model: "gemma3:27b", Family: "LLM",
		Prompt: textAnalysisPrefix + labFormPrompt,
	},
	{
		ID: OCRLlama3, Label: "OCR + Llama3", NeedsOCR: true,
		Backend: BackendLocal, Model: "llama3:8b", Family: "LLM",
		Prompt: textAnalysisPrefix + labFormPrompt,
	},
	{
		ID: ImgGemma3, Label: "Gemma3 (Image)",
		Backend: BackendLocal, Model: "gemma3:27b", Family: "Gemma3",
		Prompt: imageFieldsPrompt, RequiresMultimodal: true,
	},
	{
		ID: ImgLlama3, Label: "Llama3 (Image)",
		Backend: BackendLocal, Model: "llama3.2-vision:11b", Family: "Llama3",
		Prompt: imageFieldsPrompt, RequiresMultimodal: true,
	},
	{
		ID: ImgQwen2, Label: "Qwen2.5VL (Image)",
		Backend: BackendLocal, Model: "qwen2.5vl:7b", Family: "Qwen2.5VL",
		Prompt: imageFieldsPrompt, RequiresMultimodal: true,
	},
	{
		ID: OCRLlama4, Label: "OCR + Llama4", NeedsOCR: true,
		Backend: BackendLocal, Model: "llama4:latest", Family: "Llama4",
		Prompt: genericFormPrompt,
	},
	{
		ID: ImgLlama4, Label: "Llama 4 (Image)",
		Backend: BackendLocal, Model: "llama4:latest", Family: "Llama 4",
		Prompt: extractMarkdownPrompt, RequiresMultimodal: true,
	},
	{
		ID: ImgGeminiFlash, Label: "Gemini 2.5 Flash (Image)",
		Backend: BackendGemini, Family: "Gemini 2.5 Flash", Tier: backend.TierFlash,
		Prompt: extractMarkdownPrompt,
	},
	{
		ID: ImgGeminiPro, Label: "Gemini 2.5 Pro (Image)",
		Backend: BackendGemini, Family: "Gemini 2.5 Pro", Tier: backend.TierPro,
		Prompt: extractMarkdownPrompt,
	},
}

var byID = func() map[ID]Descriptor {
	m := make(map[ID]Descriptor, len(catalog))
	for _, d := range catalog {
		m[d.ID] = d
	}
	return m
}()

// Catalog returns every pipeline in display order.
func Catalog() []Descriptor {
	return append([]Descriptor(nil), catalog...)
}

// Lookup returns the descriptor for id.
func Lookup(id ID) (Descriptor, bool) {
	d, ok := byID[id]
	return d, ok
}

// ParseIDs accepts repeated form values and comma-joined values alike,
// drops unknown and duplicate ids, and keeps the submitted order.
func ParseIDs(values []string) []ID {
	var ids []ID
	seen := make(map[ID]bool)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			id := ID(strings.TrimSpace(part))
			if _, ok := byID[id]; !ok || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func refusal(family string) string {
	return fmt.Sprintf("%s does not support direct image input. Please use a multimodal model like LLaVA.", family)
}
