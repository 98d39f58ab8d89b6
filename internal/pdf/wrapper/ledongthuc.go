package wrapper

import (
	"bytes"
	"strings"

	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/ledongthuc/pdf"
)

// TextLayer summarizes the extractable text of a document. Scanned or
// flattened forms usually have none, which is where detection helps most.
type TextLayer struct {
	PagesWithText int `json:"pages_with_text"`
	Characters    int `json:"characters"`
}

// HasText reports whether any page carries extractable text
func (t TextLayer) HasText() bool {
	return t.Characters > 0
}

// ProbeTextLayer counts the extractable characters per page using
// ledongthuc/pdf. Pages that fail to decode are counted as empty.
func ProbeTextLayer(data []byte) (TextLayer, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return TextLayer{}, errors.Wrap(errors.CodePDFProcessingFailed, "failed to open text layer", err)
	}

	var layer TextLayer
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		n := len(strings.TrimSpace(text))
		if n > 0 {
			layer.PagesWithText++
			layer.Characters += n
		}
	}

	return layer, nil
}
