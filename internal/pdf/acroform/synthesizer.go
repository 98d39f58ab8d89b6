// Package acroform writes detected form regions into a PDF as interactive
// AcroForm fields, flattens existing fields and lists fields for checks.
package acroform

import (
	"fmt"
	"sort"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/wrapper"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sirupsen/logrus"
)

// LayoutPolicy decides whether a text field is a multi-line entry area.
// height and meanHeight are normalized canvas heights; meanHeight is the
// mean over every detection on the same page.
type LayoutPolicy interface {
	IsMultiline(height, meanHeight float64) bool
}

// RatioPolicy marks a field multiline when it is at least Threshold times
// taller than the page's mean field height.
type RatioPolicy struct {
	Threshold float64
}

// IsMultiline implements LayoutPolicy
func (p RatioPolicy) IsMultiline(height, meanHeight float64) bool {
	if meanHeight <= 0 {
		return false
	}
	return height/meanHeight >= p.Threshold
}

// DefaultLayoutPolicy is the 2× mean height rule
var DefaultLayoutPolicy LayoutPolicy = RatioPolicy{Threshold: 2}

// PageDetections are the ordered detections of one page with the transform
// of the frame they were detected on.
type PageDetections struct {
	Page       int                     `json:"page"`
	Transform  detection.PageTransform `json:"transform"`
	Detections []detection.Detection   `json:"detections"`
}

// SynthesizedField describes a widget written into the document
type SynthesizedField struct {
	Name      string              `json:"name"`
	Type      detection.FieldType `json:"type"`
	Page      int                 `json:"page"`
	Rect      detection.Rect      `json:"rect"`
	FontSize  float64             `json:"font_size,omitempty"`
	Multiline bool                `json:"multiline,omitempty"`
}

// Options controls a synthesis pass
type Options struct {
	// StripExisting flattens fields already present in the document first
	StripExisting bool
}

// Synthesizer adds fields to documents
type Synthesizer struct {
	policy LayoutPolicy
	logger logrus.FieldLogger
}

// NewSynthesizer creates a synthesizer. A nil policy uses DefaultLayoutPolicy.
func NewSynthesizer(policy LayoutPolicy, logger logrus.FieldLogger) *Synthesizer {
	if policy == nil {
		policy = DefaultLayoutPolicy
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Synthesizer{policy: policy, logger: logger}
}

// Apply loads data, adds one field per detection and returns the new PDF.
// No bytes are returned unless every field was created and the document
// was written.
func (s *Synthesizer) Apply(data []byte, pages []PageDetections, opts Options) ([]byte, []SynthesizedField, error) {
	doc, err := wrapper.Load(data)
	if err != nil {
		return nil, nil, err
	}

	fields, err := s.Synthesize(doc, pages, opts)
	if err != nil {
		return nil, nil, err
	}

	out, err := doc.Bytes()
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodePDFSaveFailed, "failed to save PDF", err)
	}
	return out, fields, nil
}

// Synthesize adds the fields to doc in place. Field names are
// "{lowercase type}_{index}" with one counter per type across all pages.
func (s *Synthesizer) Synthesize(doc *wrapper.Document, pages []PageDetections, opts Options) ([]SynthesizedField, error) {
	if err := validatePages(doc, pages); err != nil {
		return nil, err
	}

	if opts.StripExisting {
		flattened, err := Flatten(doc)
		if err != nil {
			s.logger.WithError(err).Warn("failed to flatten existing form fields, keeping them unchanged")
		} else if flattened > 0 {
			s.logger.WithField("fields", flattened).Info("flattened existing form fields")
		}
	}

	ordered := append([]PageDetections(nil), pages...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Page < ordered[j].Page })

	total := 0
	for _, p := range ordered {
		total += len(p.Detections)
	}
	if total == 0 {
		return []SynthesizedField{}, nil
	}

	ctx := doc.Context()
	form, err := acroForm(ctx, true)
	if err != nil {
		return nil, errors.Wrap(errors.CodeFieldCreationFailed, "failed to prepare AcroForm", err)
	}
	fields, err := fieldsArray(ctx, form)
	if err != nil {
		return nil, errors.Wrap(errors.CodeFieldCreationFailed, "failed to prepare AcroForm", err)
	}
	fonts, err := newFontRefs(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeFieldCreationFailed, "failed to register fonts", err)
	}

	taken, err := existingNames(doc)
	if err != nil {
		return nil, errors.Wrap(errors.CodeFieldCreationFailed, "failed to read existing fields", err)
	}

	counters := make(map[detection.FieldType]int)
	created := make([]SynthesizedField, 0, total)

	for _, p := range ordered {
		if len(p.Detections) == 0 {
			continue
		}

		pageFields, refs, err := s.synthesizePage(doc, p, fonts, counters, taken)
		if err != nil {
			return nil, err
		}
		created = append(created, pageFields...)
		fields = append(fields, refs...)
	}

	form.Update("Fields", fields)
	if err := registerFormResources(ctx, form, fonts); err != nil {
		return nil, errors.Wrap(errors.CodeFieldCreationFailed, "failed to register form resources", err)
	}

	s.logger.WithFields(logrus.Fields{
		"fields": len(created),
		"pages":  len(ordered),
	}).Info("synthesized form fields")

	return created, nil
}

func (s *Synthesizer) synthesizePage(doc *wrapper.Document, p PageDetections, fonts *fontRefs, counters map[detection.FieldType]int, taken map[string]bool) ([]SynthesizedField, types.Array, error) {
	ctx := doc.Context()

	box, err := doc.PageBox(p.Page)
	if err != nil {
		return nil, nil, errors.Retag(errors.CodeFieldCreationFailed, "failed to read page box", err).WithPage(p.Page)
	}
	pageDict, pageRef, err := doc.PageDict(p.Page)
	if err != nil {
		return nil, nil, errors.Retag(errors.CodeFieldCreationFailed, "failed to read page", err).WithPage(p.Page)
	}
	annots, err := annotsArray(ctx, pageDict)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeFieldCreationFailed, "failed to read annotations", err).WithPage(p.Page)
	}

	meanHeight := 0.0
	for _, d := range p.Detections {
		meanHeight += d.BBox.H
	}
	meanHeight /= float64(len(p.Detections))

	var (
		created []SynthesizedField
		refs    types.Array
	)

	for _, d := range p.Detections {
		if !d.Type.IsSupported() {
			s.logger.WithFields(logrus.Fields{
				"page": p.Page,
				"type": d.Type,
			}).Warn("skipping unsupported field type")
			continue
		}

		name := fmt.Sprintf("%s_%d", d.Type.Lower(), counters[d.Type])
		counters[d.Type]++
		if taken[name] {
			return nil, nil, errors.Newf(errors.CodeFieldCreationFailed,
				"a field named %s already exists", name).WithPage(p.Page)
		}
		taken[name] = true

		rect := p.Transform.ToPDF(d.BBox, box.Height).Translate(box.X, box.Y)
		field := SynthesizedField{Name: name, Type: d.Type, Page: p.Page, Rect: rect}

		var widget types.Dict
		switch d.Type {
		case detection.FieldTypeTextBox:
			field.FontSize = rect.Height
			if s.policy.IsMultiline(d.BBox.H, meanHeight) {
				field.Multiline = true
				field.FontSize = rect.Height / (d.BBox.H / meanHeight)
			}
			widget = textWidget(name, rect, *pageRef, field.FontSize, field.Multiline)
		case detection.FieldTypeSignature:
			field.FontSize = rect.Height
			widget = textWidget(name, rect, *pageRef, field.FontSize, false)
		case detection.FieldTypeChoiceButton:
			widget, err = checkboxWidget(ctx, name, rect, *pageRef, fonts)
			if err != nil {
				return nil, nil, errors.Wrap(errors.CodeFieldCreationFailed,
					fmt.Sprintf("failed to create field %s", name), err).WithPage(p.Page)
			}
		}

		ref, err := ctx.IndRefForNewObject(widget)
		if err != nil {
			return nil, nil, errors.Wrap(errors.CodeFieldCreationFailed,
				fmt.Sprintf("failed to create field %s", name), err).WithPage(p.Page)
		}

		annots = append(annots, *ref)
		refs = append(refs, *ref)
		created = append(created, field)
	}

	pageDict.Update("Annots", annots)
	return created, refs, nil
}

// existingNames returns the fully qualified names of the fields already in doc
func existingNames(doc *wrapper.Document) (map[string]bool, error) {
	fields, err := ListFields(doc)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(fields))
	for _, f := range fields {
		names[f.Name] = true
	}
	return names, nil
}

func validatePages(doc *wrapper.Document, pages []PageDetections) error {
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		if p.Page < 1 || p.Page > doc.PageCount() {
			return errors.Newf(errors.CodeInvalidDetectionResult,
				"detections reference page %d, document has %d pages", p.Page, doc.PageCount())
		}
		if seen[p.Page] {
			return errors.Newf(errors.CodeInvalidDetectionResult, "page %d listed more than once", p.Page)
		}
		seen[p.Page] = true

		if len(p.Detections) == 0 {
			continue
		}
		if err := p.Transform.Validate(); err != nil {
			return errors.Wrap(errors.CodeInvalidDetectionResult, "invalid page transform", err).WithPage(p.Page)
		}
	}
	return nil
}
