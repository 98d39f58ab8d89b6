package acroform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/wrapper"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// FieldKind is the PDF field type of an existing field
type FieldKind string

const (
	FieldKindText      FieldKind = "text"
	FieldKindCheckbox  FieldKind = "checkbox"
	FieldKindRadio     FieldKind = "radio"
	FieldKindButton    FieldKind = "button"
	FieldKindChoice    FieldKind = "choice"
	FieldKindSignature FieldKind = "signature"
	FieldKindUnknown   FieldKind = "unknown"
)

// Field is a terminal AcroForm field as found in a document
type Field struct {
	Name      string         `json:"name"`
	Kind      FieldKind      `json:"kind"`
	Page      int            `json:"page,omitempty"`
	Rect      detection.Rect `json:"rect"`
	FontSize  float64        `json:"font_size,omitempty"`
	Multiline bool           `json:"multiline,omitempty"`
	Value     string         `json:"value,omitempty"`
}

// CountFields returns the number of terminal fields in the AcroForm
func CountFields(doc *wrapper.Document) (int, error) {
	fields, err := ListFields(doc)
	if err != nil {
		return 0, err
	}
	return len(fields), nil
}

// ListFields walks the AcroForm field tree and returns its terminal fields.
// Fully qualified names join ancestors with dots.
func ListFields(doc *wrapper.Document) ([]Field, error) {
	ctx := doc.Context()

	form, err := acroForm(ctx, false)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return []Field{}, nil
	}

	roots, err := fieldsArray(ctx, form)
	if err != nil {
		return nil, err
	}

	pages := pageNumbers(doc)
	fields := []Field{}
	for _, obj := range roots {
		if err := collectFields(ctx, obj, "", pages, &fields, 0); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// maxFieldDepth bounds recursion on malformed, cyclic field trees
const maxFieldDepth = 32

func collectFields(ctx *model.Context, obj types.Object, parent string, pages map[int]int, out *[]Field, depth int) error {
	if depth > maxFieldDepth {
		return fmt.Errorf("field tree deeper than %d levels", maxFieldDepth)
	}

	d, err := ctx.DereferenceDict(obj)
	if err != nil {
		return fmt.Errorf("failed to dereference field: %w", err)
	}
	if d == nil {
		return nil
	}

	name := parent
	if t, found := d.Find("T"); found {
		if partial, err := ctx.DereferenceStringOrHexLiteral(t, model.V10, nil); err == nil {
			if name != "" {
				name += "."
			}
			name += partial
		}
	}

	if kidsObj, found := d.Find("Kids"); found {
		kids, err := ctx.DereferenceArray(kidsObj)
		if err != nil {
			return fmt.Errorf("failed to dereference Kids: %w", err)
		}
		// Kids with their own names are child fields, otherwise widgets
		if len(kids) > 0 && hasNamedKid(ctx, kids) {
			for _, kid := range kids {
				if err := collectFields(ctx, kid, name, pages, out, depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		if len(kids) > 0 {
			widget, err := ctx.DereferenceDict(kids[0])
			if err == nil && widget != nil {
				*out = append(*out, describeField(ctx, name, d, widget, pages))
				return nil
			}
		}
	}

	*out = append(*out, describeField(ctx, name, d, d, pages))
	return nil
}

func hasNamedKid(ctx *model.Context, kids types.Array) bool {
	for _, kid := range kids {
		d, err := ctx.DereferenceDict(kid)
		if err != nil || d == nil {
			continue
		}
		if _, found := d.Find("T"); found {
			return true
		}
	}
	return false
}

func describeField(ctx *model.Context, name string, field, widget types.Dict, pages map[int]int) Field {
	f := Field{Name: name, Kind: fieldKind(ctx, field)}

	flags := 0
	if obj, found := field.Find("Ff"); found {
		if v, err := ctx.DereferenceInteger(obj); err == nil && v != nil {
			flags = int(*v)
		}
	}
	f.Multiline = f.Kind == FieldKindText && flags&fieldFlagMultiline != 0

	if rect, err := numberArray(ctx, widget["Rect"]); err == nil && len(rect) == 4 {
		f.Rect = detection.Rect{X: rect[0], Y: rect[1], Width: rect[2] - rect[0], Height: rect[3] - rect[1]}
	}

	if p, found := widget.Find("P"); found {
		if ref, ok := p.(types.IndirectRef); ok {
			f.Page = pages[int(ref.ObjectNumber)]
		}
	}

	if da, found := field.Find("DA"); found {
		if s, err := ctx.DereferenceStringOrHexLiteral(da, model.V10, nil); err == nil {
			f.FontSize = fontSizeFromDA(s)
		}
	}

	if v, found := field.Find("V"); found {
		if s, err := ctx.DereferenceStringOrHexLiteral(v, model.V10, nil); err == nil {
			f.Value = s
		} else if n, err := ctx.DereferenceName(v, model.V10, nil); err == nil {
			f.Value = n.Value()
		}
	}
	return f
}

// fieldKind determines the kind from FT, following Parent for inherited values
func fieldKind(ctx *model.Context, d types.Dict) FieldKind {
	for depth := 0; d != nil && depth <= maxFieldDepth; depth++ {
		ft, found := d.Find("FT")
		if !found {
			parent, ok := d.Find("Parent")
			if !ok {
				break
			}
			next, err := ctx.DereferenceDict(parent)
			if err != nil {
				break
			}
			d = next
			continue
		}

		name, err := ctx.DereferenceName(ft, model.V10, nil)
		if err != nil {
			break
		}
		switch name {
		case "Btn":
			if v, found := d.Find("Ff"); found {
				if flags, err := ctx.DereferenceInteger(v); err == nil && flags != nil {
					if *flags&(1<<15) != 0 {
						return FieldKindRadio
					}
					if *flags&(1<<16) != 0 {
						return FieldKindButton
					}
				}
			}
			return FieldKindCheckbox
		case "Tx":
			return FieldKindText
		case "Ch":
			return FieldKindChoice
		case "Sig":
			return FieldKindSignature
		}
		break
	}
	return FieldKindUnknown
}

// fontSizeFromDA extracts the size operand of the Tf operator
func fontSizeFromDA(da string) float64 {
	parts := strings.Fields(da)
	for i, part := range parts {
		if part == "Tf" && i >= 1 {
			if size, err := strconv.ParseFloat(parts[i-1], 64); err == nil {
				return size
			}
		}
	}
	return 0
}

// pageNumbers maps page object numbers to 1-based page numbers
func pageNumbers(doc *wrapper.Document) map[int]int {
	pages := make(map[int]int, doc.PageCount())
	for i := 1; i <= doc.PageCount(); i++ {
		if _, ref, err := doc.PageDict(i); err == nil {
			pages[int(ref.ObjectNumber)] = i
		}
	}
	return pages
}
