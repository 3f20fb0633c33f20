package policy

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"
)

type pdfExtractor struct{}

func (pdfExtractor) CanExtract(filename string) bool { return hasExt(filename, ".pdf") }

// Extract shells out to pdftotext -layout; the binary comes from poppler.
func (pdfExtractor) Extract(ctx context.Context, content []byte, opt Options) (string, error) {
	bin, err := exec.LookPath(opt.PDFToText)
	if err != nil {
		return "", eris.Wrapf(err, "pdftotext not available (%s)", opt.PDFToText)
	}
	tmp, err := os.CreateTemp("", "dqlens-policy-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", eris.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "close temp file")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "pdftotext: %s", bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.String(), nil
}
