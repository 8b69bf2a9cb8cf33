package ai

const (
	KindText   = "text"
	KindVision = "vision"
)

// Modality is one of Text or Vision. Providers declare which kinds they serve.
type Modality interface {
	Kind() string
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Text is a prompt answered by a text-completion model. History holds earlier
// turns in chronological order and does not include Prompt.
type Text struct {
	SystemPrompt string
	History      []ChatMessage
	Prompt       string
}

func (Text) Kind() string { return KindText }

// Vision is a question about one image.
type Vision struct {
	Prompt string
	Image  Image
}

func (Vision) Kind() string { return KindVision }

// Image carries the raw bytes, a dereferenceable URL, or both.
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
}

func (i Image) Empty() bool {
	return len(i.Data) == 0 && i.URL == ""
}
