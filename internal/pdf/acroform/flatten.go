package acroform

import (
	"fmt"
	"strings"

	"github.com/a3tai/mcp-pdf-forms/internal/pdf/wrapper"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Flatten burns every widget's normal appearance into its page content and
// removes the widgets and the AcroForm field list. Widgets without an
// appearance disappear. It returns the number of widgets removed. Pages are
// only modified once every page has been prepared, so an error leaves the
// document as it was.
func Flatten(doc *wrapper.Document) (int, error) {
	ctx := doc.Context()

	form, err := acroForm(ctx, false)
	if err != nil {
		return 0, err
	}
	if form == nil {
		return 0, nil
	}

	var plans []*pagePlan
	removed := 0
	for page := 1; page <= doc.PageCount(); page++ {
		plan, err := planPage(ctx, page, removed)
		if err != nil {
			return 0, fmt.Errorf("page %d: %w", page, err)
		}
		if plan == nil {
			continue
		}
		removed += plan.removed
		plans = append(plans, plan)
	}

	for _, plan := range plans {
		if err := plan.commit(ctx); err != nil {
			return 0, fmt.Errorf("page %d: %w", plan.page, err)
		}
	}

	form.Update("Fields", types.Array{})
	form.Delete("XFA")
	form.Delete("NeedAppearances")
	return removed, nil
}

// pagePlan holds the edits flattening makes to one page
type pagePlan struct {
	page      int
	pageDict  types.Dict
	inherited *model.InheritedPageAttrs
	kept      types.Array
	xobjs     types.Dict
	contents  types.Array
	removed   int
}

// planPage prepares the flattening of a page without touching it. It
// returns nil when the page has no widgets.
func planPage(ctx *model.Context, page, seq int) (*pagePlan, error) {
	pageDict, _, inherited, err := ctx.PageDict(page, true)
	if err != nil {
		return nil, err
	}
	if pageDict == nil {
		return nil, fmt.Errorf("page not found")
	}

	annots, err := annotsArray(ctx, pageDict)
	if err != nil {
		return nil, err
	}
	if len(annots) == 0 {
		return nil, nil
	}

	plan := &pagePlan{page: page, pageDict: pageDict, inherited: inherited, xobjs: types.NewDict()}
	var drawOps strings.Builder

	for _, obj := range annots {
		annot, err := ctx.DereferenceDict(obj)
		if err != nil {
			return nil, err
		}
		if annot == nil || !isWidget(annot) {
			plan.kept = append(plan.kept, obj)
			continue
		}
		plan.removed++

		ref, bbox, err := normalAppearance(ctx, annot)
		if err != nil {
			return nil, err
		}
		if ref == nil || hidden(ctx, annot) {
			continue
		}
		rect, err := numberArray(ctx, annot["Rect"])
		if err != nil || len(rect) != 4 {
			continue
		}

		name := fmt.Sprintf("Flat%d", seq+plan.removed)
		plan.xobjs.Insert(name, *ref)
		drawOps.WriteString(placeXObject(name, rect, bbox))
	}

	if plan.removed == 0 {
		return nil, nil
	}

	if drawOps.Len() > 0 {
		if err := checkResources(ctx, pageDict); err != nil {
			return nil, err
		}
		plan.contents, err = wrappedContents(ctx, pageDict, drawOps.String())
		if err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func (p *pagePlan) commit(ctx *model.Context) error {
	if p.contents != nil {
		if err := addXObjects(ctx, p.pageDict, p.inherited, p.xobjs); err != nil {
			return err
		}
		p.pageDict.Update("Contents", p.contents)
	}

	if len(p.kept) == 0 {
		p.pageDict.Delete("Annots")
	} else {
		p.pageDict.Update("Annots", p.kept)
	}
	return nil
}

// checkResources fails when the page's XObject resources cannot be read
func checkResources(ctx *model.Context, pageDict types.Dict) error {
	obj, found := pageDict.Find("Resources")
	if !found {
		return nil
	}
	resources, err := ctx.DereferenceDict(obj)
	if err != nil {
		return fmt.Errorf("failed to dereference Resources: %w", err)
	}
	if resources == nil {
		return nil
	}
	if xobj, found := resources.Find("XObject"); found {
		if _, err := ctx.DereferenceDict(xobj); err != nil {
			return fmt.Errorf("failed to dereference XObject: %w", err)
		}
	}
	return nil
}

func isWidget(annot types.Dict) bool {
	subtype := annot.NameEntry("Subtype")
	return subtype != nil && *subtype == "Widget"
}

func hidden(ctx *model.Context, annot types.Dict) bool {
	obj, found := annot.Find("F")
	if !found {
		return false
	}
	flags, err := ctx.DereferenceInteger(obj)
	return err == nil && flags != nil && int(*flags)&annotFlagHidden != 0
}

// normalAppearance resolves AP /N, picking the AS state for state
// dictionaries, and returns the stream reference and its BBox.
func normalAppearance(ctx *model.Context, annot types.Dict) (*types.IndirectRef, []float64, error) {
	apObj, found := annot.Find("AP")
	if !found {
		return nil, nil, nil
	}
	ap, err := ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return nil, nil, err
	}
	n, found := ap.Find("N")
	if !found {
		return nil, nil, nil
	}

	ref, isRef := n.(types.IndirectRef)
	if isRef {
		sd, err := streamAt(ctx, ref)
		if err != nil {
			return nil, nil, err
		}
		if sd != nil {
			return withBBox(ctx, ref, sd)
		}
	}

	// Otherwise a dictionary of appearance states keyed by AS
	states, err := ctx.DereferenceDict(n)
	if err != nil || states == nil {
		return nil, nil, err
	}
	state := annot.NameEntry("AS")
	if state == nil {
		return nil, nil, nil
	}
	stateRef, ok := states[*state].(types.IndirectRef)
	if !ok {
		return nil, nil, nil
	}
	sd, err := streamAt(ctx, stateRef)
	if err != nil || sd == nil {
		return nil, nil, err
	}
	return withBBox(ctx, stateRef, sd)
}

func withBBox(ctx *model.Context, ref types.IndirectRef, sd *types.StreamDict) (*types.IndirectRef, []float64, error) {
	bbox, err := numberArray(ctx, sd.Dict["BBox"])
	if err != nil || len(bbox) != 4 {
		return nil, nil, nil
	}
	return &ref, bbox, nil
}

// streamAt returns the stream behind ref, or nil when ref is not a stream
func streamAt(ctx *model.Context, ref types.IndirectRef) (*types.StreamDict, error) {
	obj, err := ctx.Dereference(ref)
	if err != nil {
		return nil, err
	}
	if sd, ok := obj.(types.StreamDict); ok {
		return &sd, nil
	}
	return nil, nil
}

func numberArray(ctx *model.Context, obj types.Object) ([]float64, error) {
	if obj == nil {
		return nil, nil
	}
	arr, err := ctx.DereferenceArray(obj)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(arr))
	for _, v := range arr {
		f, err := ctx.DereferenceNumber(v)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// placeXObject maps the appearance BBox onto the annotation rectangle
func placeXObject(name string, rect, bbox []float64) string {
	bw, bh := bbox[2]-bbox[0], bbox[3]-bbox[1]
	rw, rh := rect[2]-rect[0], rect[3]-rect[1]
	if bw == 0 || bh == 0 {
		return ""
	}
	sx, sy := rw/bw, rh/bh
	tx := rect[0] - bbox[0]*sx
	ty := rect[1] - bbox[1]*sy
	return fmt.Sprintf("q %s 0 0 %s %s %s cm /%s Do Q\n",
		formatNumber(sx), formatNumber(sy), formatNumber(tx), formatNumber(ty), name)
}

func addXObjects(ctx *model.Context, pageDict types.Dict, inherited *model.InheritedPageAttrs, xobjs types.Dict) error {
	if _, found := pageDict.Find("Resources"); !found {
		resources := types.NewDict()
		if inherited != nil && inherited.Resources != nil {
			resources = inherited.Resources.Clone().(types.Dict)
		}
		pageDict.Insert("Resources", resources)
	}

	resources, err := subDict(ctx, pageDict, "Resources")
	if err != nil {
		return err
	}
	xobjDict, err := subDict(ctx, resources, "XObject")
	if err != nil {
		return err
	}
	for name, ref := range xobjs {
		xobjDict.Update(name, ref)
	}
	return nil
}

// wrappedContents returns the page's content isolated in q/Q followed by ops
func wrappedContents(ctx *model.Context, pageDict types.Dict, ops string) (types.Array, error) {
	pre, err := contentStream(ctx, "q\n")
	if err != nil {
		return nil, err
	}
	post, err := contentStream(ctx, "Q\n"+ops)
	if err != nil {
		return nil, err
	}

	contents := types.Array{*pre}
	if obj, found := pageDict.Find("Contents"); found {
		switch v := obj.(type) {
		case types.IndirectRef:
			resolved, err := ctx.Dereference(v)
			if err != nil {
				return nil, err
			}
			if arr, ok := resolved.(types.Array); ok {
				contents = append(contents, arr...)
			} else {
				contents = append(contents, v)
			}
		case types.Array:
			contents = append(contents, v...)
		}
	}
	return append(contents, *post), nil
}

func contentStream(ctx *model.Context, content string) (*types.IndirectRef, error) {
	sd, err := ctx.NewStreamDictForBuf([]byte(content))
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return ctx.IndRefForNewObject(*sd)
}
