package acroform

import (
	"fmt"
	"strconv"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Annotation and field flags
const (
	annotFlagHidden = 1 << 1
	annotFlagPrint  = 1 << 2

	fieldFlagMultiline = 1 << 12
)

// Resource names used in default appearance strings
const (
	helveticaName    = "Helv"
	zapfDingbatsName = "ZaDb"
)

// checkmark is the ZapfDingbats glyph drawn in the "Yes" state
const checkmark = "4"

// formatNumber writes a PDF number without trailing zeros
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func rectArray(r detection.Rect) types.Array {
	llx, lly, urx, ury := r.Corners()
	return types.NewNumberArray(llx, lly, urx, ury)
}

func defaultAppearance(font string, size float64) types.StringLiteral {
	return types.StringLiteral(fmt.Sprintf("/%s %s Tf 0 g", font, formatNumber(size)))
}

// baseWidget returns the entries shared by every synthesized widget: a
// merged field/annotation dictionary with a suppressed border and an empty
// appearance characteristics dictionary.
func baseWidget(name, fieldType string, rect detection.Rect, pageRef types.IndirectRef) types.Dict {
	d := types.NewDict()
	d.Insert("Type", types.Name("Annot"))
	d.Insert("Subtype", types.Name("Widget"))
	d.Insert("FT", types.Name(fieldType))
	d.Insert("T", types.StringLiteral(name))
	d.Insert("Rect", rectArray(rect))
	d.Insert("F", types.Integer(annotFlagPrint))
	d.Insert("P", pageRef)

	border := types.NewDict()
	border.Insert("W", types.Integer(0))
	d.Insert("BS", border)
	d.Insert("MK", types.NewDict())
	return d
}

func textWidget(name string, rect detection.Rect, pageRef types.IndirectRef, fontSize float64, multiline bool) types.Dict {
	d := baseWidget(name, "Tx", rect, pageRef)
	d.Insert("DA", defaultAppearance(helveticaName, fontSize))
	if multiline {
		d.Insert("Ff", types.Integer(fieldFlagMultiline))
	}
	return d
}

// checkboxWidget builds an unchecked checkbox with explicit on and off
// appearances so viewers that ignore NeedAppearances still render it.
func checkboxWidget(ctx *model.Context, name string, rect detection.Rect, pageRef types.IndirectRef, fonts *fontRefs) (types.Dict, error) {
	d := baseWidget(name, "Btn", rect, pageRef)
	d.Insert("DA", defaultAppearance(zapfDingbatsName, 0))
	d.Insert("V", types.Name("Off"))
	d.Insert("AS", types.Name("Off"))

	on, err := checkboxAppearance(ctx, rect, fonts, true)
	if err != nil {
		return nil, err
	}
	off, err := checkboxAppearance(ctx, rect, fonts, false)
	if err != nil {
		return nil, err
	}

	normal := types.NewDict()
	normal.Insert("Yes", *on)
	normal.Insert("Off", *off)

	ap := types.NewDict()
	ap.Insert("N", normal)
	d.Insert("AP", ap)
	return d, nil
}

func checkboxAppearance(ctx *model.Context, rect detection.Rect, fonts *fontRefs, checked bool) (*types.IndirectRef, error) {
	var content string
	if checked {
		size := rect.Height * 0.8
		if rect.Width < rect.Height {
			size = rect.Width * 0.8
		}
		// ZapfDingbats "4" is about 0.75em wide and 0.7em tall
		x := (rect.Width - size*0.75) / 2
		y := (rect.Height - size*0.7) / 2
		content = fmt.Sprintf("q BT 0 g /%s %s Tf %s %s Td (%s) Tj ET Q",
			zapfDingbatsName, formatNumber(size), formatNumber(x), formatNumber(y), checkmark)
	}

	sd, err := ctx.NewStreamDictForBuf([]byte(content))
	if err != nil {
		return nil, err
	}
	sd.Insert("Type", types.Name("XObject"))
	sd.Insert("Subtype", types.Name("Form"))
	sd.Insert("BBox", types.NewNumberArray(0, 0, rect.Width, rect.Height))

	fontDict := types.NewDict()
	fontDict.Insert(zapfDingbatsName, *fonts.zapfDingbats)
	resources := types.NewDict()
	resources.Insert("Font", fontDict)
	sd.Insert("Resources", resources)

	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return ctx.IndRefForNewObject(*sd)
}

// fontRefs holds the standard fonts referenced by field appearances
type fontRefs struct {
	helvetica    *types.IndirectRef
	zapfDingbats *types.IndirectRef
}

func newFontRefs(ctx *model.Context) (*fontRefs, error) {
	helv := types.NewDict()
	helv.Insert("Type", types.Name("Font"))
	helv.Insert("Subtype", types.Name("Type1"))
	helv.Insert("BaseFont", types.Name("Helvetica"))
	helv.Insert("Encoding", types.Name("WinAnsiEncoding"))

	zadb := types.NewDict()
	zadb.Insert("Type", types.Name("Font"))
	zadb.Insert("Subtype", types.Name("Type1"))
	zadb.Insert("BaseFont", types.Name("ZapfDingbats"))

	helvRef, err := ctx.IndRefForNewObject(helv)
	if err != nil {
		return nil, err
	}
	zadbRef, err := ctx.IndRefForNewObject(zadb)
	if err != nil {
		return nil, err
	}
	return &fontRefs{helvetica: helvRef, zapfDingbats: zadbRef}, nil
}
