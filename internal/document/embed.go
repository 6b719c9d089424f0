package document

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

const (
	emuPerCM = 360000

	nsWordprocessingDrawing = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
	nsRelationships         = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

const drawingRun = `<w:r xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:wp="%[5]s" xmlns:r="%[6]s">` +
	`<w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">` +
	`<wp:extent cx="%[1]d" cy="%[1]d"/>` +
	`<wp:docPr id="%[2]d" name="Certificate Code %[2]d"/>` +
	`<wp:cNvGraphicFramePr><a:graphicFrameLocks xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" noChangeAspect="1"/></wp:cNvGraphicFramePr>` +
	`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">` +
	`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">` +
	`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">` +
	`<pic:nvPicPr><pic:cNvPr id="0" name="%[3]s"/><pic:cNvPicPr/></pic:nvPicPr>` +
	`<pic:blipFill><a:blip r:embed="%[4]s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>` +
	`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%[1]d" cy="%[1]d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>` +
	`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`

// EmbedImage places the PNG at imagePath into the first cell of the first
// table of the template and returns the modified template.
func (r *Renderer) EmbedImage(template []byte, imagePath string) ([]byte, error) {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read code image: %w", err)
	}

	pkg, err := openPackage(template)
	if err != nil {
		return nil, err
	}

	doc, err := pkg.xml(mainDocumentPart)
	if err != nil {
		return nil, err
	}

	para, err := imageParagraph(doc)
	if err != nil {
		return nil, err
	}

	mediaName := nextMediaName(pkg)
	relID, err := addImageRelationship(pkg, mediaPath(mediaName))
	if err != nil {
		return nil, err
	}
	if err := ensurePNGContentType(pkg); err != nil {
		return nil, err
	}

	clearParagraph(para)

	extent := int64(math.Round(r.options.ImageSizeCM * emuPerCM))
	frag := etree.NewDocument()
	runXML := fmt.Sprintf(drawingRun, extent, nextDrawingID(doc), mediaName, relID, nsWordprocessingDrawing, nsRelationships)
	if err := frag.ReadFromString(runXML); err != nil {
		return nil, fmt.Errorf("failed to build drawing: %w", err)
	}
	para.AddChild(frag.Root())

	ensureRootNamespaces(doc.Root())

	if err := pkg.setXML(mainDocumentPart, doc); err != nil {
		return nil, err
	}
	pkg.set("word/"+mediaPath(mediaName), img)

	return pkg.bytes()
}

// imageParagraph locates the first paragraph of table[0].row[0].cell[0],
// creating the paragraph when the cell holds none.
func imageParagraph(doc *etree.Document) (*etree.Element, error) {
	tbl := doc.FindElement("//w:tbl")
	if tbl == nil {
		return nil, ErrNoImageCell
	}
	row := firstChild(tbl, "tr")
	if row == nil {
		return nil, ErrNoImageCell
	}
	cell := firstChild(row, "tc")
	if cell == nil {
		return nil, ErrNoImageCell
	}

	para := firstChild(cell, "p")
	if para == nil {
		para = cell.CreateElement("w:p")
	}
	return para, nil
}

// clearParagraph drops everything but the paragraph properties
func clearParagraph(p *etree.Element) {
	for _, child := range p.ChildElements() {
		if isWord(child, "pPr") {
			continue
		}
		p.RemoveChild(child)
	}
}

func mediaPath(mediaName string) string {
	return "media/" + mediaName
}

func nextMediaName(pkg *docxPackage) string {
	for i := 1; ; i++ {
		name := "certcode" + strconv.Itoa(i) + ".png"
		if !pkg.has("word/" + mediaPath(name)) {
			return name
		}
	}
}

func addImageRelationship(pkg *docxPackage, target string) (string, error) {
	doc, err := pkg.xml(relationshipPart)
	if err != nil {
		return "", err
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("%w: empty relationships part", ErrInvalidTemplate)
	}

	maxID := 0
	for _, rel := range root.ChildElements() {
		id := strings.TrimPrefix(rel.SelectAttrValue("Id", ""), "rId")
		if n, err := strconv.Atoi(id); err == nil && n > maxID {
			maxID = n
		}
	}

	relID := "rId" + strconv.Itoa(maxID+1)
	rel := root.CreateElement("Relationship")
	rel.CreateAttr("Id", relID)
	rel.CreateAttr("Type", imageRelType)
	rel.CreateAttr("Target", target)

	if err := pkg.setXML(relationshipPart, doc); err != nil {
		return "", err
	}
	return relID, nil
}

func ensurePNGContentType(pkg *docxPackage) error {
	doc, err := pkg.xml(contentTypesPart)
	if err != nil {
		return err
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("%w: empty content types part", ErrInvalidTemplate)
	}

	for _, def := range root.SelectElements("Default") {
		if strings.EqualFold(def.SelectAttrValue("Extension", ""), "png") {
			return nil
		}
	}

	def := root.CreateElement("Default")
	def.CreateAttr("Extension", "png")
	def.CreateAttr("ContentType", "image/png")
	return pkg.setXML(contentTypesPart, doc)
}

// nextDrawingID returns an unused wp:docPr id
func nextDrawingID(doc *etree.Document) int {
	maxID := 0
	for _, pr := range doc.FindElements("//wp:docPr") {
		if n, err := strconv.Atoi(pr.SelectAttrValue("id", "")); err == nil && n > maxID {
			maxID = n
		}
	}
	return maxID + 1
}

// ensureRootNamespaces declares the drawing prefixes on the document root
func ensureRootNamespaces(root *etree.Element) {
	if root == nil {
		return
	}
	if root.SelectAttr("xmlns:wp") == nil {
		root.CreateAttr("xmlns:wp", nsWordprocessingDrawing)
	}
	if root.SelectAttr("xmlns:r") == nil {
		root.CreateAttr("xmlns:r", nsRelationships)
	}
}
