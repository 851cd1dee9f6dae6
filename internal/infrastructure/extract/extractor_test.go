package extract

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscriber struct {
	text     string
	err      error
	filename string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, filename string, _ []byte) (string, error) {
	f.filename = filename
	return f.text, f.err
}

func TestExtractText_PlainText(t *testing.T) {
	e := New(nil)

	text, err := e.ExtractText(context.Background(), []byte("name,value\na,10"), "text/csv; charset=utf-8")

	require.NoError(t, err)
	assert.Equal(t, "name,value\na,10", text)
}

func TestExtractText_InvalidUTF8(t *testing.T) {
	e := New(nil)

	_, err := e.ExtractText(context.Background(), []byte{0xff, 0xfe, 0xfd}, "text/plain")

	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestExtractText_JSON(t *testing.T) {
	e := New(nil)

	text, err := e.ExtractText(context.Background(), []byte(`{"secret":"abc","n":1}`), "application/json")

	require.NoError(t, err)
	assert.Contains(t, text, `"secret": "abc"`)
}

func TestExtractText_CorruptJSON(t *testing.T) {
	e := New(nil)

	_, err := e.ExtractText(context.Background(), []byte(`{"broken`), "application/json")

	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestExtractText_HTML(t *testing.T) {
	e := New(nil)

	text, err := e.ExtractText(context.Background(), []byte("<h1>Title</h1><p>body text</p>"), "text/html")

	require.NoError(t, err)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "body text")
	assert.NotContains(t, text, "<p>")
}

func TestExtractText_CorruptPDF(t *testing.T) {
	e := New(nil)

	_, err := e.ExtractText(context.Background(), []byte("not a pdf"), "application/pdf")

	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestExtractText_MalformedPDFWithValidHeader(t *testing.T) {
	// Well-formed header and xref table, but the object offset points at
	// garbage. The library only notices while resolving pages and panics
	// there instead of returning an error.
	doc := "%PDF-1.4\ngarbage\n"
	xrefAt := len(doc)
	doc += "xref\n" +
		"0 2\n" +
		"0000000000 65535 f \n" +
		"0000000009 00000 n \n" +
		"trailer\n<< /Size 2 /Root 1 0 R >>\nstartxref\n" +
		strconv.Itoa(xrefAt) + "\n%%EOF"

	e := New(nil)

	_, err := e.ExtractText(context.Background(), []byte(doc), "application/pdf")

	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestExtractText_Audio(t *testing.T) {
	transcriber := &fakeTranscriber{text: "what is the square root of nine"}
	e := New(transcriber)

	text, err := e.ExtractText(context.Background(), []byte{0x49, 0x44, 0x33}, "audio/mpeg")

	require.NoError(t, err)
	assert.Contains(t, text, "what is the square root of nine")
	assert.Contains(t, text, "AUDIO TRANSCRIPTION")
	assert.Equal(t, "resource.mp3", transcriber.filename)
}

func TestExtractText_AudioWithoutTranscriber(t *testing.T) {
	e := New(nil)

	_, err := e.ExtractText(context.Background(), []byte{0x00}, "audio/wav")

	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractText_TranscriptionFailure(t *testing.T) {
	transcriber := &fakeTranscriber{err: errors.New("whisper unavailable")}
	e := New(transcriber)

	_, err := e.ExtractText(context.Background(), []byte{0x00}, "audio/mpeg")

	assert.Error(t, err)
}

func TestExtractText_UnsupportedFormat(t *testing.T) {
	e := New(nil)

	_, err := e.ExtractText(context.Background(), []byte{0x50, 0x4b}, "application/zip")

	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestAudioFilename(t *testing.T) {
	assert.Equal(t, "resource.wav", audioFilename("audio/wav"))
	assert.Equal(t, "resource.m4a", audioFilename("audio/mp4"))
	assert.Equal(t, "resource.mp3", audioFilename("audio/x-unknown"))
}
