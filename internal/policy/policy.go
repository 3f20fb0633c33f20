// Package policy extracts plain text from policy documents.
package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// ErrUnsupported indicates a policy format with no extractor.
var ErrUnsupported = errors.New("unsupported policy format")

// Options configures extraction.
type Options struct {
	// PDFToText is the pdftotext binary used for PDF files.
	PDFToText string `json:"pdftotext_path" yaml:"pdftotext_path"`
}

func DefaultOptions() Options {
	return Options{PDFToText: "pdftotext"}
}

// Extractor turns a document into text.
type Extractor interface {
	CanExtract(filename string) bool
	Extract(ctx context.Context, content []byte, opt Options) (string, error)
}

var registry []Extractor

// Register adds an extractor implementation to the registry.
func Register(e Extractor) {
	registry = append(registry, e)
}

func init() {
	Register(txtExtractor{})
	Register(markdownExtractor{})
	Register(docxExtractor{})
	Register(pdfExtractor{})
}

// Supported reports whether filename has a registered extractor.
func Supported(filename string) bool {
	for _, e := range registry {
		if e.CanExtract(filename) {
			return true
		}
	}
	return false
}

// ExtractFile reads path and returns its normalised text.
func ExtractFile(ctx context.Context, path string, opt Options) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrap(err, "read policy")
	}
	return ExtractBytes(ctx, filepath.Base(path), data, opt)
}

// ExtractBytes extracts text from uploaded content; filename selects the format.
func ExtractBytes(ctx context.Context, filename string, content []byte, opt Options) (string, error) {
	if opt.PDFToText == "" {
		opt.PDFToText = DefaultOptions().PDFToText
	}
	for _, e := range registry {
		if e.CanExtract(filename) {
			text, err := e.Extract(ctx, content, opt)
			if err != nil {
				return "", eris.Wrapf(err, "extract %s", filename)
			}
			return Normalize(text), nil
		}
	}
	return "", eris.Wrapf(ErrUnsupported, "%s", filename)
}

// Normalize unifies line endings, composes Unicode, trims trailing spaces
// and collapses runs of blank lines.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	text = norm.NFC.String(text)
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

func hasExt(filename string, exts ...string) bool {
	name := strings.ToLower(filename)
	for _, e := range exts {
		if strings.HasSuffix(name, e) {
			return true
		}
	}
	return false
}
