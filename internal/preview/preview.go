// Package preview renders uploaded documents into data URLs for display.
package preview

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	pdfMediaType = "application/pdf"
	pngMediaType = "image/png"
)

// ErrUnsupported is returned for media types that have no preview.
var ErrUnsupported = errors.New("unsupported media type")

// Renderer turns a document's bytes into a displayable data URL.
type Renderer interface {
	Render(fileName, mediaType string, content []byte) (string, error)
}

var disableConfigDir sync.Once

// DataURLRenderer re-encodes images as PNG and reduces PDFs to their first page.
type DataURLRenderer struct {
	pdfConf *model.Configuration
}

// NewRenderer creates a DataURLRenderer.
func NewRenderer() *DataURLRenderer {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &DataURLRenderer{pdfConf: conf}
}

// Render returns a data URL for content. fileName is only used in error messages.
func (r *DataURLRenderer) Render(fileName, mediaType string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("render %s: empty file", fileName)
	}
	mediaType = normalize(mediaType)
	switch {
	case mediaType == pdfMediaType:
		page, err := r.firstPage(content)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", fileName, err)
		}
		return dataURL(pdfMediaType, page), nil
	case strings.HasPrefix(mediaType, "image/"):
		img, err := reencode(content)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", fileName, err)
		}
		return dataURL(pngMediaType, img), nil
	default:
		return "", fmt.Errorf("render %s (%s): %w", fileName, mediaType, ErrUnsupported)
	}
}

func (r *DataURLRenderer) firstPage(content []byte) ([]byte, error) {
	n, err := api.PageCount(bytes.NewReader(content), r.pdfConf)
	if err != nil {
		return nil, fmt.Errorf("read PDF: %w", err)
	}
	if n < 1 {
		return nil, errors.New("PDF has no pages")
	}
	if n == 1 {
		return content, nil
	}
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(content), &out, []string{"1"}, r.pdfConf); err != nil {
		return nil, fmt.Errorf("trim PDF to first page: %w", err)
	}
	return out.Bytes(), nil
}

func reencode(content []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if format == "png" {
		return content, nil
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode %s as png: %w", format, err)
	}
	return out.Bytes(), nil
}

func normalize(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func dataURL(mediaType string, b []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(b)
}
