package resume

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

func TestExtractContact(t *testing.T) {
	text := "\n  jane DOE\nSenior Engineer\njane.doe@example.com | +1 (555) 123-4567\n"
	c := ExtractContact(text)
	if c.Name != "Jane" {
		t.Fatalf("name = %q", c.Name)
	}
	if c.Email != "jane.doe@example.com" {
		t.Fatalf("email = %q", c.Email)
	}
	if c.Phone != "+1 (555) 123-4567" {
		t.Fatalf("phone = %q", c.Phone)
	}
}

func TestExtractContact_Missing(t *testing.T) {
	c := ExtractContact("bob@example.org\nNo phone here")
	if c.Name != "" || c.Phone != "" || c.Email != "bob@example.org" {
		t.Fatalf("unexpected contact %+v", c)
	}
	if (ExtractContact("") != Contact{}) {
		t.Fatalf("empty text should yield nothing")
	}
}

func TestText_Plain(t *testing.T) {
	f := &domain.ResumeFile{Name: "cv.txt", Type: MimePlain, Data: base64.StdEncoding.EncodeToString([]byte("Ada Lovelace"))}
	got, err := Text(f)
	if err != nil || got != "Ada Lovelace" {
		t.Fatalf("Text = %q, %v", got, err)
	}
}

func TestText_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/document.xml")
	_, _ = w.Write([]byte(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Grace Hopper</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>grace@navy.mil</w:t></w:r></w:p>` +
		`</w:body></w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip: %v", err)
	}
	f := &domain.ResumeFile{Name: "cv.docx", Type: MimeDOCX, Data: base64.StdEncoding.EncodeToString(buf.Bytes())}
	got, err := Text(f)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "Grace Hopper\ngrace@navy.mil\n" {
		t.Fatalf("Text = %q", got)
	}
	if c := ExtractContact(got); c.Name != "Grace" || c.Email != "grace@navy.mil" {
		t.Fatalf("contact = %+v", c)
	}
}

func TestText_Errors(t *testing.T) {
	pdf := &domain.ResumeFile{Name: "cv.pdf", Type: MimePDF, Data: base64.StdEncoding.EncodeToString([]byte("%PDF-1.7"))}
	if _, err := Text(pdf); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("pdf: want ErrUnsupported, got %v", err)
	}
	bad := &domain.ResumeFile{Name: "cv.txt", Type: MimePlain, Data: "%%%"}
	if _, err := Text(bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad base64: want validation error, got %v", err)
	}
	notZip := &domain.ResumeFile{Name: "cv.docx", Type: MimeDOCX, Data: base64.StdEncoding.EncodeToString([]byte("plain"))}
	if _, err := Text(notZip); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad docx: want validation error, got %v", err)
	}
}
