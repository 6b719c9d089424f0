package document

import (
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// substituteTree replaces placeholders in every paragraph of doc and reports
// how many were replaced
func substituteTree(doc *etree.Document, fields map[string]string) int {
	count := 0
	for _, p := range doc.FindElements("//w:p") {
		count += substituteParagraph(p, fields)
	}
	return count
}

// substituteParagraph replaces each placeholder exactly once. Runs are
// edited in place when every placeholder sits inside a single run; when Word
// split one across runs the paragraph text is collapsed into the first run.
// Only template text is matched, so values are never expanded again.
func substituteParagraph(p *etree.Element, fields map[string]string) int {
	texts := paragraphTexts(p, nil)
	if len(texts) == 0 {
		return 0
	}

	originals := make([]string, len(texts))
	var joined strings.Builder
	inRuns := 0
	for i, t := range texts {
		originals[i] = t.Text()
		joined.WriteString(originals[i])
		inRuns += len(placeholderPattern.FindAllStringIndex(originals[i], -1))
	}

	total := len(placeholderPattern.FindAllStringIndex(joined.String(), -1))
	if total == 0 {
		return 0
	}

	if inRuns == total {
		for i, t := range texts {
			if replaced, n := replacePlaceholders(originals[i], fields); n > 0 {
				setText(t, replaced)
			}
		}
		return total
	}

	replaced, n := replacePlaceholders(joined.String(), fields)
	setText(texts[0], replaced)
	for _, t := range texts[1:] {
		t.SetText("")
	}
	return n
}

// paragraphTexts collects the w:t elements owned by p, without descending
// into nested paragraphs (text boxes)
func paragraphTexts(el *etree.Element, acc []*etree.Element) []*etree.Element {
	for _, child := range el.ChildElements() {
		switch {
		case isWord(child, "p"):
			continue
		case isWord(child, "t"):
			acc = append(acc, child)
		default:
			acc = paragraphTexts(child, acc)
		}
	}
	return acc
}

func replacePlaceholders(text string, fields map[string]string) (string, int) {
	count := 0
	out := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		count++
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return fields[name]
	})
	return out, count
}

func setText(t *etree.Element, text string) {
	t.SetText(text)
	t.CreateAttr("xml:space", "preserve")
}
