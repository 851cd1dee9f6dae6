package entity

type ResourceKind string

const (
	ResourceLink         ResourceKind = "link"
	ResourceEmbeddedText ResourceKind = "embedded_text"
	ResourceTable        ResourceKind = "table"
)

// RenderedPage is the raw output of the rendering session for one URL.
type RenderedPage struct {
	URL   string
	Title string
	HTML  string
	Text  string
}

// FormSpec locates the answer form on a quiz page. Selectors are best-effort;
// an empty SubmitSelector means the page submits on Enter.
type FormSpec struct {
	FieldSelector  string
	SubmitSelector string
}

// QuizPage is one rendered quiz instance. It is produced fresh each loop
// iteration and discarded within the same iteration.
type QuizPage struct {
	URL          string
	Title        string
	QuestionText string
	HTML         string
	Resources    []Resource
	Form         FormSpec
}

// Resource is one attachment referenced by a quiz question. ExtractedText is
// empty until the gatherer processes it and immutable afterwards. Unavailable
// marks an isolated extraction failure; the chain continues without the text.
type Resource struct {
	Kind          ResourceKind
	RawLocator    string
	MimeType      string
	ExtractedText string
	ImageData     []byte
	Unavailable   bool
}
