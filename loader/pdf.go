package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"policyrag/types"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageExtractor produces per-page text for a stored PDF along with the
// document's physical page count, which may exceed the number of
// returned pages when some pages carry no text.
type PageExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]types.Page, int, error)
}

// PDFExtractor validates the PDF with pdfcpu, optionally crops headers
// and footers, and sends the file to the converter sidecar for text
// extraction. Empty pages are dropped, page numbers are 1-based.
type PDFExtractor struct {
	converterURL string
	cropTop      float64
	cropBottom   float64
	client       *http.Client
}

func NewPDFExtractor(converterURL string, cropTop, cropBottom float64, timeout time.Duration) *PDFExtractor {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &PDFExtractor{
		converterURL: converterURL,
		cropTop:      cropTop,
		cropBottom:   cropBottom,
		client:       &http.Client{Timeout: timeout},
	}
}

func (e *PDFExtractor) ExtractPages(ctx context.Context, path string) ([]types.Page, int, error) {
	if err := api.ValidateFile(path, nil); err != nil {
		return nil, 0, types.ExtractionError{Path: path, Err: fmt.Errorf("invalid PDF: %w", err)}
	}

	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, 0, types.ExtractionError{Path: path, Err: err}
	}

	convertPath := path
	if e.cropTop > 0 || e.cropBottom > 0 {
		cropped, err := e.cropToTemp(path)
		if err != nil {
			return nil, 0, types.ExtractionError{Path: path, Err: err}
		}
		defer os.Remove(cropped)
		convertPath = cropped
	}

	raw, err := e.convert(ctx, convertPath)
	if err != nil {
		return nil, 0, types.ExtractionError{Path: path, Err: err}
	}

	pages := make([]types.Page, 0, pageCount)
	for _, p := range raw {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		pages = append(pages, types.Page{
			LocalPath: path,
			Number:    p.PageNo,
			Text:      text,
		})
	}
	return pages, pageCount, nil
}

// PageCount reports the number of pages without extracting text.
func (e *PDFExtractor) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, types.ExtractionError{Path: path, Err: err}
	}
	return n, nil
}

func (e *PDFExtractor) cropToTemp(path string) (string, error) {
	tmp := filepath.Join(os.TempDir(), "crop_"+filepath.Base(path))
	if err := RemoveHeaderFooterCrop(path, tmp, e.cropTop, e.cropBottom); err != nil {
		return "", err
	}
	return tmp, nil
}

type converterPage struct {
	PageNo int    `json:"page_no"`
	Text   string `json:"text"`
}

type converterResponse struct {
	Document struct {
		Pages []converterPage `json:"pages"`
	} `json:"document"`
}

// convert posts the PDF to the converter sidecar and decodes its
// per-page text payload.
func (e *PDFExtractor) convert(ctx context.Context, path string) ([]converterPage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("files", path)
	if err != nil {
		return nil, err
	}
	if _, err = io.Copy(part, file); err != nil {
		return nil, err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", e.converterURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("converter error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var d converterResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("decode converter response: %w", err)
	}
	return d.Document.Pages, nil
}
