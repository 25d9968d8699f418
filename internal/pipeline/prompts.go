package pipeline

const (
	describeImagePrompt   = "Describe the contents of this image."
	imageFieldsPrompt     = "Describe the contents of this image and extract relevant fields as a markdown table."
	extractMarkdownPrompt = "Extract all fields and tables from this document as markdown."

	// prepended to the lab-form prompt by the text-model pipelines
	textAnalysisPrefix = "Analyze the following extracted text from an image and summarize or answer questions as appropriate.\n\n"

	labFormPrompt = "You are an expert at reading scanned medical lab forms. " +
		"Given the following OCR-extracted text from a scanned form, extract the following fields as accurately as possible: " +
		"Patient ID, Lab ID, Patient Name, Date, Test Name, Result, Reference Range, Doctor Name. " +
		"For each field, if the value is not found, leave it blank. " +
		"Do not swap field names and values, and do not guess. " +
		"Present the results as a markdown table with columns: Field, Value. " +
		"If you find extra fields, add them as additional rows. " +
		"Here is the OCR text:\n"

	genericFormPrompt = "You are an expert at reading scanned forms. " +
		"Given the following OCR-extracted text from a scanned form, extract all relevant fields and values, " +
		"and present them as a markdown table. If the form has sections, use them as table headers. " +
		"If the data is not tabular, present it in a clear, structured way.\n\n"
)
