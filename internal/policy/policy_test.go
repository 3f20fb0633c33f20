package policy_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dqlens-cli/internal/policy"
)

func TestExtractFileTXTNormalizes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "policy.TXT")
	require.NoError(t, os.WriteFile(p, []byte("Emails must be valid.  \r\n\r\n\r\n\r\nIds are unique.\r\n"), 0o644))

	got, err := policy.ExtractFile(context.Background(), p, policy.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "Emails must be valid.\n\nIds are unique.", got)
}

func TestExtractMarkdownStripsMarkers(t *testing.T) {
	t.Parallel()

	md := "# Data policy\n\n- Every **customer** must have an `email`.\n1. Ages stay below 120.\n> Quoted rule here.\n```\ncode block\n```\n"
	got, err := policy.ExtractBytes(context.Background(), "p.md", []byte(md), policy.Options{})
	require.NoError(t, err)
	assert.Equal(t, "Data policy\n\nEvery customer must have an email.\nAges stay below 120.\nQuoted rule here.", got)
}

func TestExtractDOCX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>Phone numbers are mandatory.</w:t></w:r></w:p><w:p><w:r><w:t>Terms &amp; codes</w:t><w:br/><w:t>apply.</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	got, err := policy.ExtractBytes(context.Background(), "policy.docx", buf.Bytes(), policy.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "Phone numbers are mandatory.\nTerms & codes\napply.", got)

	_, err = policy.ExtractBytes(context.Background(), "broken.docx", []byte("not a zip"), policy.DefaultOptions())
	assert.Error(t, err)
}

func TestExtractUnsupported(t *testing.T) {
	t.Parallel()

	assert.False(t, policy.Supported("policy.rtf"))
	assert.True(t, policy.Supported("policy.PDF"))
	_, err := policy.ExtractBytes(context.Background(), "policy.rtf", []byte("x"), policy.DefaultOptions())
	assert.ErrorIs(t, err, policy.ErrUnsupported)
}

func TestExtractPDFWithoutBinary(t *testing.T) {
	t.Parallel()

	_, err := policy.ExtractBytes(context.Background(), "p.pdf", []byte("%PDF-1.4"), policy.Options{PDFToText: filepath.Join(t.TempDir(), "missing-pdftotext")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext not available")
}
