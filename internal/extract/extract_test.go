package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Our office is at 123 Main St.</w:t></w:r></w:p>
<w:p><w:r><w:t>Returns &amp; refunds</w:t></w:r><w:r><w:tab/><w:t>within 30 days.</w:t></w:r></w:p>
<w:p></w:p>
</w:body></w:document>`

const documentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

func buildDocx(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"word/document.xml":            documentXML,
		"word/_rels/document.xml.rels": documentRels,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		mime     string
		want     Format
		wantErr  bool
	}{
		{"brochure.pdf", "", FormatPDF, false},
		{"upload.bin", "application/pdf", FormatPDF, false},
		{"Policy.DOCX", "", FormatDOCX, false},
		{"notes.md", "", FormatText, false},
		{"faq.txt", "text/plain", FormatText, false},
		{"sheet.xlsx", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DetectFormat(tt.filename, tt.mime)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDOCX_ParagraphText(t *testing.T) {
	data := buildDocx(t)

	text, err := DOCXBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "Our office is at 123 Main St.\nReturns & refunds within 30 days.", text)

	path := filepath.Join(t.TempDir(), "profile.docx")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	fromFile, err := File(path, "")
	require.NoError(t, err)
	assert.Equal(t, text, fromFile)
}

func TestFile_PlainText(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "faq.txt")
	require.NoError(t, os.WriteFile(path, []byte("  Delivery terms: 5 business days.\n"), 0o600))
	text, err := File(path, "")
	require.NoError(t, err)
	assert.Equal(t, "Delivery terms: 5 business days.", text)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte(" \n "), 0o600))
	_, err = File(empty, "")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := File(filepath.Join(dir, "sheet.xlsx"), "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	broken := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(broken, []byte("not a pdf"), 0o600))
	_, err = File(broken, "")
	assert.Error(t, err)

	_, err = File(filepath.Join(dir, "missing.docx"), "")
	assert.Error(t, err)
}
