package output

import "context"

// CompletionRequest is one reasoning call. Images are optional JPEG/PNG
// attachments sent as multimodal parts.
type CompletionRequest struct {
	System      string
	Prompt      string
	Images      [][]byte
	Temperature float32
}

type LLMPort interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Transcriber turns an audio attachment into text. Implemented by the same
// adapter as LLMPort but kept separate so the extractor depends on no more
// than it needs.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, data []byte) (string, error)
}
