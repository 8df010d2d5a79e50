// Package resume extracts plain text and contact details from an uploaded
// résumé.
package resume

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

const (
	MimeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePDF   = "application/pdf"
	MimePlain = "text/plain"
)

// ErrUnsupported is returned for files whose text cannot be read here. PDF
// text must be extracted by the client and sent alongside the file.
var ErrUnsupported = domain.NewError(domain.ErrValidation, "unsupported_resume", "Unsupported file format. Please upload PDF or DOCX.")

var (
	emailRE = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRE = regexp.MustCompile(`(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)

	titleCase = cases.Title(language.Und)
)

// Contact is what could be read from a résumé. Empty fields were not found.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// ExtractContact finds the first email address and phone number in text.
// The name is the first word of the first non-empty line.
func ExtractContact(text string) Contact {
	c := Contact{
		Email: emailRE.FindString(text),
		Phone: strings.TrimSpace(phoneRE.FindString(text)),
	}
	for _, line := range strings.Split(text, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			if !emailRE.MatchString(f[0]) && !phoneRE.MatchString(f[0]) {
				c.Name = titleCase.String(f[0])
			}
			break
		}
	}
	return c
}

// Text returns the plain text of f. Plain-text and DOCX uploads are read
// directly; anything else is ErrUnsupported.
func Text(f *domain.ResumeFile) (string, error) {
	if f == nil {
		return "", ErrUnsupported
	}
	data, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return "", domain.Invalid("resume_file", "resume file is not valid base64")
	}
	switch {
	case f.Type == MimePlain || strings.HasSuffix(strings.ToLower(f.Name), ".txt"):
		return string(data), nil
	case f.Type == MimeDOCX || strings.HasSuffix(strings.ToLower(f.Name), ".docx"):
		return docxText(data)
	}
	return "", ErrUnsupported
}

// docxText reads the paragraphs of word/document.xml.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.Invalid("resume_file", "resume file is not a readable DOCX document")
	}
	for _, zf := range zr.File {
		if path.Clean(zf.Name) != "word/document.xml" {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return documentText(rc)
	}
	return "", domain.Invalid("resume_file", "resume file is not a readable DOCX document")
}

func documentText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", domain.Invalid("resume_file", "resume file is not a readable DOCX document")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
