package output

import "context"

// ExtractorPort reduces a downloaded binary resource to plain text.
// Fails with extract.ErrUnsupportedFormat or extract.ErrCorruptDocument.
type ExtractorPort interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// FetcherPort downloads a resource referenced by a quiz page.
type FetcherPort interface {
	Fetch(ctx context.Context, url string) (data []byte, mimeType string, err error)
}
