package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// defaultTextTimeout bounds one text layer read.
const defaultTextTimeout = 10 * time.Second

// ErrTextTimeout is returned when the text layer could not be read in time.
var ErrTextTimeout = errors.New("pdf text extraction timed out")

var (
	pdfConfOnce sync.Once
	pdfConf     *model.Configuration
)

func validationConf() *model.Configuration {
	pdfConfOnce.Do(func() {
		api.DisableConfigDir()
		pdfConf = model.NewDefaultConfiguration()
		pdfConf.ValidationMode = model.ValidationRelaxed
	})
	return pdfConf
}

// checkPageTree rejects PDFs whose page tree pdfcpu cannot walk, such as a Pages node listing
// itself as a kid. ledongthuc/pdf follows such trees forever.
func checkPageTree(content []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(content), validationConf())
	if err != nil {
		return 0, fmt.Errorf("validate PDF: %w", err)
	}
	if n < 1 {
		return 0, errors.New("PDF has no pages")
	}
	return n, nil
}

// readPDFText validates the page tree, then reads the text on a separate goroutine so a parser
// stall cannot outlive ctx or timeout. A stalled parser goroutine is abandoned.
func readPDFText(ctx context.Context, content []byte, maxPages int, timeout time.Duration) (string, error) {
	pages, err := checkPageTree(content)
	if err != nil {
		return "", err
	}
	if maxPages <= 0 || pages < maxPages {
		maxPages = pages
	}
	if timeout <= 0 {
		timeout = defaultTextTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := extractPDF(content, maxPages)
		done <- result{text, err}
	}()
	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTextTimeout
		}
		return "", ctx.Err()
	}
}

// extractPDF joins the plain text of each page. Pages whose content stream cannot be read are
// skipped so one bad page does not hide the rest.
func extractPDF(content []byte, maxPages int) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	n := r.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n"), nil
}
