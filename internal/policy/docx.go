package policy

import (
	"archive/zip"
	"bytes"
	"context"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

type docxExtractor struct{}

func (docxExtractor) CanExtract(filename string) bool { return hasExt(filename, ".docx") }

var (
	docxBreak = regexp.MustCompile(`</w:p>|<w:br\s*/>|<w:cr\s*/>`)
	docxTab   = regexp.MustCompile(`<w:tab\s*/>`)
	xmlTag    = regexp.MustCompile(`<[^>]+>`)
)

// Extract reads word/document.xml, turning paragraphs and breaks into
// newlines before stripping the markup.
func (docxExtractor) Extract(_ context.Context, content []byte, _ Options) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", eris.Wrap(err, "open docx")
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", eris.Wrap(err, "open document.xml")
		}
		docXML, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", eris.Wrap(err, "read document.xml")
		}
		break
	}
	if len(docXML) == 0 {
		return "", eris.New("document.xml not found in DOCX")
	}
	text := docxBreak.ReplaceAllString(string(docXML), "\n")
	text = docxTab.ReplaceAllString(text, "\t")
	text = xmlTag.ReplaceAllString(text, "")
	return html.UnescapeString(strings.TrimSpace(text)), nil
}
