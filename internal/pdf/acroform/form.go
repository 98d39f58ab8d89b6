package acroform

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// acroForm returns the document's AcroForm dictionary, creating and
// registering an empty one when create is set and none exists.
func acroForm(ctx *model.Context, create bool) (types.Dict, error) {
	root, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	if obj, found := root.Find("AcroForm"); found {
		form, err := ctx.DereferenceDict(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
		}
		if form != nil {
			return form, nil
		}
	}

	if !create {
		return nil, nil
	}

	form := types.NewDict()
	form.Insert("Fields", types.Array{})
	ref, err := ctx.IndRefForNewObject(form)
	if err != nil {
		return nil, fmt.Errorf("failed to register AcroForm: %w", err)
	}
	root.Update("AcroForm", *ref)
	return form, nil
}

// fieldsArray returns a copy of the AcroForm Fields array
func fieldsArray(ctx *model.Context, form types.Dict) (types.Array, error) {
	obj, found := form.Find("Fields")
	if !found {
		return types.Array{}, nil
	}
	fields, err := ctx.DereferenceArray(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}
	return append(types.Array{}, fields...), nil
}

// annotsArray returns a copy of a page's Annots array
func annotsArray(ctx *model.Context, pageDict types.Dict) (types.Array, error) {
	obj, found := pageDict.Find("Annots")
	if !found {
		return types.Array{}, nil
	}
	annots, err := ctx.DereferenceArray(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Annots array: %w", err)
	}
	return append(types.Array{}, annots...), nil
}

// subDict returns parent[key] as a dictionary, creating a direct one when
// it is missing. Indirect dictionaries are modified in place.
func subDict(ctx *model.Context, parent types.Dict, key string) (types.Dict, error) {
	if obj, found := parent.Find(key); found {
		d, err := ctx.DereferenceDict(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to dereference %s: %w", key, err)
		}
		if d != nil {
			return d, nil
		}
	}
	d := types.NewDict()
	parent.Update(key, d)
	return d, nil
}

// registerFormResources installs the default resources, default appearance
// and NeedAppearances flag viewers need to render synthesized fields.
func registerFormResources(ctx *model.Context, form types.Dict, fonts *fontRefs) error {
	dr, err := subDict(ctx, form, "DR")
	if err != nil {
		return err
	}
	fontDict, err := subDict(ctx, dr, "Font")
	if err != nil {
		return err
	}
	if _, found := fontDict.Find(helveticaName); !found {
		fontDict.Insert(helveticaName, *fonts.helvetica)
	}
	if _, found := fontDict.Find(zapfDingbatsName); !found {
		fontDict.Insert(zapfDingbatsName, *fonts.zapfDingbats)
	}

	if _, found := form.Find("DA"); !found {
		form.Insert("DA", defaultAppearance(helveticaName, 0))
	}
	form.Update("NeedAppearances", types.Boolean(true))
	return nil
}
