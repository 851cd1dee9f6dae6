package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ledongthuc/pdf"

	"quiz-agent/internal/application/port/output"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("corrupt document")
)

var _ output.ExtractorPort = (*Extractor)(nil)

// Extractor reduces downloaded resources to plain text. Audio goes through
// the transcriber; everything else is decoded locally.
type Extractor struct {
	transcriber output.Transcriber
	converter   *md.Converter
}

func New(transcriber output.Transcriber) *Extractor {
	return &Extractor{
		transcriber: transcriber,
		converter:   md.NewConverter("", true, nil),
	}
}

func (e *Extractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	base := mimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(strings.ToLower(base))

	switch {
	case base == "application/pdf":
		return pdfText(data)
	case base == "application/json":
		return jsonText(data)
	case base == "text/html":
		return e.htmlText(data)
	case strings.HasPrefix(base, "text/"):
		return plainText(data)
	case strings.HasPrefix(base, "audio/"):
		return e.audioText(ctx, base, data)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
}

func pdfText(data []byte) (text string, err error) {
	// ledongthuc/pdf panics on malformed cross references and objects
	// instead of returning errors; a bad attachment must degrade, not
	// take the process down.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", ErrCorruptDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "--- page %d ---\n%s\n", i, text)
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no extractable text", ErrCorruptDocument)
	}
	return sb.String(), nil
}

func jsonText(data []byte) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(data), nil
	}
	return string(pretty), nil
}

func (e *Extractor) htmlText(data []byte) (string, error) {
	markdown, err := e.converter.ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return markdown, nil
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrCorruptDocument)
	}
	return string(data), nil
}

func (e *Extractor) audioText(ctx context.Context, mime string, data []byte) (string, error) {
	if e.transcriber == nil {
		return "", fmt.Errorf("%w: no transcriber configured for %s", ErrUnsupportedFormat, mime)
	}
	text, err := e.transcriber.Transcribe(ctx, audioFilename(mime), data)
	if err != nil {
		return "", fmt.Errorf("audio transcription failed: %w", err)
	}
	return "AUDIO TRANSCRIPTION (may contain the actual question): " + text, nil
}

func audioFilename(mime string) string {
	switch mime {
	case "audio/wav":
		return "resource.wav"
	case "audio/ogg":
		return "resource.ogg"
	case "audio/mp4":
		return "resource.m4a"
	case "audio/flac":
		return "resource.flac"
	}
	return "resource.mp3"
}
