package policy

import (
	"context"
	"regexp"
	"strings"
)

type txtExtractor struct{}

func (txtExtractor) CanExtract(filename string) bool { return hasExt(filename, ".txt") }

func (txtExtractor) Extract(_ context.Context, content []byte, _ Options) (string, error) {
	return string(content), nil
}

type markdownExtractor struct{}

func (markdownExtractor) CanExtract(filename string) bool {
	return hasExt(filename, ".md", ".markdown")
}

var (
	mdPrefix = regexp.MustCompile(`^\s*(?:#{1,6}\s+|>\s?|[-*+]\s+|\d+[.)]\s+)`)
	mdInline = strings.NewReplacer("**", "", "__", "", "`", "")
)

// Extract drops block markers (headings, quotes, bullets) and emphasis so each
// line reads as prose.
func (markdownExtractor) Extract(_ context.Context, content []byte, _ Options) (string, error) {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	var fenced bool
	out := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			fenced = !fenced
			continue
		}
		if fenced {
			continue
		}
		l = mdPrefix.ReplaceAllString(l, "")
		out = append(out, mdInline.Replace(l))
	}
	return strings.Join(out, "\n"), nil
}
