package document

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

const (
	mainDocumentPart = "word/document.xml"
	relationshipPart = "word/_rels/document.xml.rels"
	contentTypesPart = "[Content_Types].xml"
	imageRelType     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
)

var (
	// ErrInvalidTemplate is returned when the template is not a readable DOCX package
	ErrInvalidTemplate = errors.New("template is not a valid docx package")
	// ErrNoImageCell is returned when the template has no first table cell to hold the code image
	ErrNoImageCell = errors.New("template must have at least a 1x1 table to insert the code image")
)

// docxPackage is an opened DOCX file: an ordered set of zip parts
type docxPackage struct {
	names []string
	parts map[string][]byte
}

func openPackage(data []byte) (*docxPackage, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	pkg := &docxPackage{parts: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open part %s: %w", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read part %s: %w", f.Name, err)
		}
		pkg.names = append(pkg.names, f.Name)
		pkg.parts[f.Name] = body
	}

	if _, ok := pkg.parts[mainDocumentPart]; !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidTemplate, mainDocumentPart)
	}

	return pkg, nil
}

func (p *docxPackage) set(name string, body []byte) {
	if _, ok := p.parts[name]; !ok {
		p.names = append(p.names, name)
	}
	p.parts[name] = body
}

func (p *docxPackage) has(name string) bool {
	_, ok := p.parts[name]
	return ok
}

// xml parses a part into an element tree
func (p *docxPackage) xml(name string) (*etree.Document, error) {
	body, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidTemplate, name)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return doc, nil
}

func (p *docxPackage) setXML(name string, doc *etree.Document) error {
	body, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", name, err)
	}
	p.set(name, body)
	return nil
}

// textParts lists the parts that may carry placeholders: body, headers, footers
func (p *docxPackage) textParts() []string {
	out := []string{mainDocumentPart}
	var extra []string
	for _, name := range p.names {
		if !strings.HasPrefix(name, "word/") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		base := strings.TrimPrefix(name, "word/")
		if strings.Contains(base, "/") {
			continue
		}
		if strings.HasPrefix(base, "header") || strings.HasPrefix(base, "footer") {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func (p *docxPackage) bytes() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, name := range p.names {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("failed to create part %s: %w", name, err)
		}
		if _, err := w.Write(p.parts[name]); err != nil {
			return nil, fmt.Errorf("failed to write part %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize docx: %w", err)
	}
	return buf.Bytes(), nil
}

// isWord reports whether el is the WordprocessingML element w:<tag>
func isWord(el *etree.Element, tag string) bool {
	return el.Space == "w" && el.Tag == tag
}

// firstChild returns the first direct child w:<tag> of el
func firstChild(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if isWord(child, tag) {
			return child
		}
	}
	return nil
}
