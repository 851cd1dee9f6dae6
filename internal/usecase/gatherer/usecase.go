package gatherer

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"quiz-agent/internal/application/port/output"
	"quiz-agent/internal/domain/entity"
	"quiz-agent/internal/infrastructure/browser/pageclean"
)

const (
	maxQuestionLen = 20_000
	maxTableLen    = 10_000
	maxEmbeddedLen = 10_000

	// UnavailableMarker replaces the text of a resource whose extraction
	// failed. Per-resource failures never abort the gather call.
	UnavailableMarker = "(resource unavailable)"
)

// mimeByExt covers the file types the extractor can turn into text or the
// solver can consume directly. Extensions without a handler downstream are
// deliberately absent so their links never become dead-weight resources.
var mimeByExt = map[string]string{
	".pdf":  "application/pdf",
	".csv":  "text/csv",
	".txt":  "text/plain",
	".json": "application/json",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".flac": "audio/flac",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// UseCase discovers the resources referenced by a rendered quiz page and
// reduces each one to plain text. It is stateless per call.
type UseCase struct {
	fetcher   output.FetcherPort
	extractor output.ExtractorPort
	logger    output.LoggerPort
	converter *md.Converter
}

func New(fetcher output.FetcherPort, extractor output.ExtractorPort, logger output.LoggerPort) *UseCase {
	return &UseCase{
		fetcher:   fetcher,
		extractor: extractor,
		logger:    logger,
		converter: md.NewConverter("", true, nil),
	}
}

// Parse turns a rendered page into a QuizPage: question text, form locators
// and the references of every attached resource. ExtractedText stays empty
// until Gather runs.
func (uc *UseCase) Parse(rendered *entity.RenderedPage) *entity.QuizPage {
	cleaned := pageclean.Clean(rendered.HTML, nil)

	page := &entity.QuizPage{
		URL:   rendered.URL,
		Title: rendered.Title,
		HTML:  cleaned,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cleaned))
	if err != nil {
		uc.logger.Warn("Page HTML not parseable, using raw text", "url", rendered.URL, "error", err)
		page.QuestionText = clip(rendered.Text, maxQuestionLen)
		return page
	}

	page.QuestionText = uc.questionText(cleaned, rendered.Text)
	page.Form = findForm(doc)
	page.Resources = findResources(doc)

	return page
}

// Gather populates ExtractedText for every resource of the page. A failing
// resource is logged, marked unavailable and skipped; partial resource sets
// are a normal outcome. An empty resource set is valid.
func (uc *UseCase) Gather(ctx context.Context, page *entity.QuizPage) []entity.Resource {
	gathered := make([]entity.Resource, 0, len(page.Resources))

	for _, res := range page.Resources {
		switch res.Kind {
		case entity.ResourceLink:
			gathered = append(gathered, uc.gatherLink(ctx, page.URL, res))
		case entity.ResourceTable, entity.ResourceEmbeddedText:
			gathered = append(gathered, uc.gatherInline(page.HTML, res))
		default:
			res.Unavailable = true
			res.ExtractedText = UnavailableMarker
			gathered = append(gathered, res)
		}
	}

	return gathered
}

func (uc *UseCase) gatherLink(ctx context.Context, baseURL string, res entity.Resource) entity.Resource {
	absolute := resolveURL(baseURL, res.RawLocator)

	data, mime, err := uc.fetcher.Fetch(ctx, absolute)
	if err != nil {
		uc.logger.Warn("Resource fetch failed", "url", absolute, "error", err)
		res.Unavailable = true
		res.ExtractedText = UnavailableMarker
		return res
	}
	if res.MimeType == "" {
		res.MimeType = mime
	}

	// Images go to the solver as multimodal attachments, not text.
	if strings.HasPrefix(res.MimeType, "image/") {
		res.ImageData = data
		res.ExtractedText = fmt.Sprintf("(image, %d bytes, attached)", len(data))
		return res
	}

	text, err := uc.extractor.ExtractText(ctx, data, res.MimeType)
	if err != nil {
		uc.logger.Warn("Resource extraction failed", "url", absolute, "mime", res.MimeType, "error", err)
		res.Unavailable = true
		res.ExtractedText = UnavailableMarker
		return res
	}

	res.ExtractedText = text
	uc.logger.Info("Resource gathered", "url", absolute, "mime", res.MimeType, "chars", len(text))
	return res
}

// gatherInline re-reads the page markup and serializes the table or text
// block the locator points at.
func (uc *UseCase) gatherInline(pageHTML string, res entity.Resource) entity.Resource {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		res.Unavailable = true
		res.ExtractedText = UnavailableMarker
		return res
	}

	idx, selector := splitInlineLocator(res.RawLocator)
	sel := doc.Find(selector).Eq(idx)
	if sel.Length() == 0 {
		uc.logger.Warn("Inline resource not found", "locator", res.RawLocator)
		res.Unavailable = true
		res.ExtractedText = UnavailableMarker
		return res
	}

	if res.Kind == entity.ResourceTable {
		res.ExtractedText = clip(serializeTable(sel), maxTableLen)
	} else {
		res.ExtractedText = clip(strings.TrimSpace(sel.Text()), maxEmbeddedLen)
	}
	return res
}

func (uc *UseCase) questionText(cleanedHTML, fallback string) string {
	markdown, err := uc.converter.ConvertString(cleanedHTML)
	if err != nil || strings.TrimSpace(markdown) == "" {
		return clip(strings.TrimSpace(fallback), maxQuestionLen)
	}
	return clip(strings.TrimSpace(markdown), maxQuestionLen)
}

// findForm locates the answer input and its submit control.
func findForm(doc *goquery.Document) entity.FormSpec {
	var form entity.FormSpec

	field := doc.Find(`input[type="text"], input[type="number"], input:not([type]), textarea`).First()
	if field.Length() > 0 {
		form.FieldSelector = cssSelector(field)
	}

	submit := doc.Find(`button[type="submit"], input[type="submit"], form button`).First()
	if submit.Length() > 0 {
		form.SubmitSelector = cssSelector(submit)
	}

	return form
}

// findResources collects file links, audio sources, images, tables and
// preformatted blocks in document order per category.
func findResources(doc *goquery.Document) []entity.Resource {
	var resources []entity.Resource
	seen := make(map[string]bool)

	addLink := func(locator string) {
		locator = strings.TrimSpace(locator)
		if locator == "" || seen[locator] {
			return
		}
		seen[locator] = true
		resources = append(resources, entity.Resource{
			Kind:       entity.ResourceLink,
			RawLocator: locator,
			MimeType:   mimeByExt[strings.ToLower(path.Ext(stripQuery(locator)))],
		})
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if _, ok := mimeByExt[strings.ToLower(path.Ext(stripQuery(href)))]; ok {
			addLink(href)
		}
	})
	doc.Find("audio[src], source[src], img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if strings.HasPrefix(src, "data:") {
			return
		}
		addLink(src)
	})

	doc.Find("table").Each(func(i int, _ *goquery.Selection) {
		resources = append(resources, entity.Resource{
			Kind:       entity.ResourceTable,
			RawLocator: fmt.Sprintf("table#%d", i),
		})
	})
	doc.Find("pre").Each(func(i int, _ *goquery.Selection) {
		resources = append(resources, entity.Resource{
			Kind:       entity.ResourceEmbeddedText,
			RawLocator: fmt.Sprintf("pre#%d", i),
		})
	})

	return resources
}

func serializeTable(table *goquery.Selection) string {
	var rows []string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " | "))
		}
	})
	return strings.Join(rows, "\n")
}

// cssSelector builds a selector rod can use later: id wins, then name, then
// the bare tag.
func cssSelector(s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		return "#" + id
	}
	tag := goquery.NodeName(s)
	if name, ok := s.Attr("name"); ok && name != "" {
		return fmt.Sprintf(`%s[name="%s"]`, tag, name)
	}
	return tag
}

func splitInlineLocator(locator string) (int, string) {
	parts := strings.SplitN(locator, "#", 2)
	if len(parts) != 2 {
		return 0, locator
	}
	var idx int
	fmt.Sscanf(parts[1], "%d", &idx)
	return idx, parts[0]
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func stripQuery(locator string) string {
	if i := strings.IndexAny(locator, "?#"); i >= 0 {
		return locator[:i]
	}
	return locator
}

// clip caps s at max bytes without splitting a multi-byte rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}
