package normalize

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

const docxBodyPart = "word/document.xml"

// DocxConverter extracts paragraph text from Office Open XML documents.
// Heading paragraphs become markdown headings so the splitter can label sections.
type DocxConverter struct{}

func NewDocxConverter() *DocxConverter {
	return &DocxConverter{}
}

func (c *DocxConverter) Convert(_ context.Context, raw []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.Wrap(domain.ErrCorruptDocument, fmt.Errorf("not a zip archive: %w", err))
	}

	for _, f := range reader.File {
		if f.Name != docxBodyPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", domain.Wrap(domain.ErrCorruptDocument, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", domain.Wrap(domain.ErrCorruptDocument, err)
		}
		return parseDocumentXML(content)
	}

	return "", domain.Wrap(domain.ErrCorruptDocument, fmt.Errorf("missing %s", docxBodyPart))
}

// paragraphText accumulates the text of one w:p while the token walk is inside it.
type paragraphText struct {
	style string
	text  strings.Builder
}

// parseDocumentXML walks every token of the body part, so text nested in
// hyperlinks, tables, content controls and the like is kept in document order.
func parseDocumentXML(content []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	var (
		b      strings.Builder
		open   []*paragraphText
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", domain.Wrap(domain.ErrCorruptDocument, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				open = append(open, &paragraphText{})
			case "pStyle":
				if len(open) > 0 {
					open[len(open)-1].style = attrValue(el, "val")
				}
			case "t":
				inText = true
			case "tab", "br", "cr":
				if len(open) > 0 {
					open[len(open)-1].text.WriteString(" ")
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				if len(open) == 0 {
					continue
				}
				p := open[len(open)-1]
				open = open[:len(open)-1]
				writeParagraph(&b, p)
			}
		case xml.CharData:
			if inText && len(open) > 0 {
				open[len(open)-1].text.Write(el)
			}
		}
	}

	return strings.TrimSpace(b.String()), nil
}

func writeParagraph(b *strings.Builder, p *paragraphText) {
	text := strings.TrimSpace(p.text.String())
	if text == "" {
		return
	}
	if level := headingLevel(p.style); level > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.Repeat("#", level))
		b.WriteString(" ")
	}
	b.WriteString(text)
	b.WriteString("\n\n")
}

func attrValue(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// headingLevel maps Word paragraph styles to markdown heading depth; 0 is body text.
func headingLevel(style string) int {
	if style == "Title" {
		return 1
	}
	rest, ok := strings.CutPrefix(style, "Heading")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0
	}
	return min(n, 6)
}
