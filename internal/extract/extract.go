// Package extract pulls page text out of PDF documents.
//
// Extraction is page-scoped: a page that cannot be parsed yields a PageError
// and processing continues with the next page. Only a document that cannot
// be opened at all is fatal. Pages carrying embedded JPEG images are passed
// through an optional OCR client and the recognized text is appended to the
// page's direct text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrCorruptPDF marks a document that cannot be opened. Unlike page-level
// failures this aborts ingestion of the whole document.
var ErrCorruptPDF = errors.New("corrupt pdf document")

// PageError is a recoverable, page-scoped extraction failure. The page it
// refers to may still carry partial text.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Page is the extracted text of a single page. Text is empty for pages
// without any extractable content.
type Page struct {
	Number int
	Text   string
}

// OCRClient recognizes text in a raster image. Implementations are expected
// to honor the context deadline.
type OCRClient interface {
	OCR(ctx context.Context, image []byte) (string, error)
}

// Extractor parses PDFs and extracts per-page text. The OCR client is
// optional; without one, image-only pages yield empty text.
type Extractor struct {
	ocr    OCRClient
	logger *slog.Logger
}

// New creates an Extractor. ocr may be nil.
func New(ocr OCRClient, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ocr: ocr, logger: logger}
}

// Pages opens a PDF and returns an iterator over its pages along with the
// total page count. An unreadable document returns ErrCorruptPDF.
func (e *Extractor) Pages(data []byte) (it *PageIterator, total int, err error) {
	// The underlying parser panics on malformed cross reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			it, total = nil, 0
			err = fmt.Errorf("%w: %v", ErrCorruptPDF, rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptPDF, err)
	}

	total = reader.NumPage()
	if total < 1 {
		return nil, 0, fmt.Errorf("%w: no pages", ErrCorruptPDF)
	}
	return &PageIterator{extractor: e, reader: reader, total: total, next: 1}, total, nil
}

// PageIterator walks document pages in order. Seek makes it restartable, so
// a caller resuming after an interruption does not re-extract earlier pages.
type PageIterator struct {
	extractor *Extractor
	reader    *pdf.Reader
	total     int
	next      int
}

// Total returns the page count of the document.
func (it *PageIterator) Total() int { return it.total }

// Seek positions the iterator so the following Next returns page n.
func (it *PageIterator) Seek(n int) {
	if n < 1 {
		n = 1
	}
	it.next = n
}

// Next extracts the next page. It returns io.EOF once all pages are
// consumed. A *PageError return still carries the page with whatever text
// was extracted directly, so the caller can keep it and record the error.
func (it *PageIterator) Next(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if it.next > it.total {
		return Page{}, io.EOF
	}

	num := it.next
	it.next++

	text, err := it.extractor.pageText(ctx, it.reader, num)
	page := Page{Number: num, Text: text}
	if err != nil {
		return page, &PageError{Page: num, Err: err}
	}
	return page, nil
}

// pageText extracts the direct text of one page and, when an OCR client is
// configured, appends recognized text from embedded JPEG images. On OCR
// failure the direct text gathered so far is returned alongside the error.
func (e *Extractor) pageText(ctx context.Context, r *pdf.Reader, num int) (string, error) {
	direct, err := plainText(r, num)
	if err != nil {
		return "", err
	}

	var parts []string
	if direct != "" {
		parts = append(parts, direct)
	}
	if e.ocr == nil {
		return strings.Join(parts, "\n\n"), nil
	}

	for i, img := range jpegImages(r, num) {
		recognized, err := e.ocr.OCR(ctx, img)
		if err != nil {
			return strings.Join(parts, "\n\n"), fmt.Errorf("ocr image %d: %w", i, err)
		}
		if s := strings.TrimSpace(recognized); s != "" {
			parts = append(parts, s)
		}
		e.logger.Debug("ocr applied", "page", num, "image", i)
	}
	return strings.Join(parts, "\n\n"), nil
}

// plainText reads the page content stream. Parser panics on a single broken
// page are converted to errors so the rest of the document still processes.
func plainText(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("page parse: %v", rec)
		}
	}()

	p := r.Page(num)
	if p.V.IsNull() {
		return "", nil
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("text extraction: %w", err)
	}
	return text, nil
}

// jpegImages collects raw DCTDecode image XObjects from a page's resources.
// Streams that fail to decode are skipped.
func jpegImages(r *pdf.Reader, num int) (images [][]byte) {
	defer func() {
		if rec := recover(); rec != nil {
			images = nil
		}
	}()

	res := r.Page(num).Resources()
	if res.Kind() != pdf.Dict {
		return nil
	}
	xobjects := res.Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return nil
	}

	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Kind() != pdf.Stream {
			continue
		}
		if obj.Key("Subtype").Name() != "Image" || obj.Key("Filter").Name() != "DCTDecode" {
			continue
		}
		if data, err := readStream(obj); err == nil && len(data) > 0 {
			images = append(images, data)
		}
	}
	return images
}

func readStream(v pdf.Value) (data []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			data, err = nil, fmt.Errorf("stream decode: %v", rec)
		}
	}()

	rc := v.Reader()
	defer rc.Close()
	return io.ReadAll(rc)
}
