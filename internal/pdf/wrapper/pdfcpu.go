package wrapper

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/a3tai/mcp-pdf-forms/internal/detection"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home
	api.DisableConfigDir()
}

// Document is a parsed, validated PDF held in pdfcpu's object model.
// It is not safe for concurrent use.
type Document struct {
	ctx *model.Context
}

// Configuration returns the relaxed pdfcpu configuration used for all reads
func Configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Load parses a PDF from memory
func Load(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.CodePDFLoadFailed, "document is empty")
	}
	return Open(bytes.NewReader(data))
}

// LoadFile parses a PDF from disk
func LoadFile(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodePDFLoadFailed, "failed to open PDF file", err)
	}
	defer file.Close()

	return Open(file)
}

// Open parses a PDF from a seekable reader
func Open(rs io.ReadSeeker) (*Document, error) {
	ctx, err := api.ReadValidateAndOptimize(rs, Configuration())
	if err != nil {
		if errors.IsEncryptionError(err) {
			return nil, errors.Wrap(errors.CodePDFEncryptedOrMalformed, "document is encrypted", err)
		}
		return nil, errors.Wrap(errors.CodePDFLoadFailed, "failed to read PDF context", err)
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, errors.Wrap(errors.CodePDFLoadFailed, "failed to ensure page count", err)
	}

	return &Document{ctx: ctx}, nil
}

// Context exposes the underlying pdfcpu context for object level edits
func (d *Document) Context() *model.Context {
	return d.ctx
}

// PageCount returns the number of pages in the document
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Encrypted reports whether the source document carried an Encrypt dictionary
func (d *Document) Encrypted() bool {
	return d.ctx.Encrypt != nil
}

// PageBox returns the MediaBox of a 1-based page. X and Y hold the
// lower-left corner, which is the origin for every coordinate on the page.
func (d *Document) PageBox(pageNum int) (detection.Rect, error) {
	if pageNum < 1 || pageNum > d.ctx.PageCount {
		return detection.Rect{}, errors.Newf(errors.CodePDFProcessingFailed,
			"invalid page number %d (document has %d pages)", pageNum, d.ctx.PageCount)
	}

	_, _, inherited, err := d.ctx.PageDict(pageNum, false)
	if err != nil {
		return detection.Rect{}, errors.Wrap(errors.CodePDFProcessingFailed,
			fmt.Sprintf("failed to read page %d", pageNum), err)
	}
	if inherited == nil || inherited.MediaBox == nil {
		return detection.Rect{}, errors.Newf(errors.CodePDFProcessingFailed, "page %d has no MediaBox", pageNum)
	}

	return rectFromBox(inherited.MediaBox), nil
}

// PageDict returns the page dictionary and its indirect reference
func (d *Document) PageDict(pageNum int) (types.Dict, *types.IndirectRef, error) {
	pageDict, ref, _, err := d.ctx.PageDict(pageNum, false)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodePDFProcessingFailed,
			fmt.Sprintf("failed to read page %d", pageNum), err)
	}
	if pageDict == nil || ref == nil {
		return nil, nil, errors.Newf(errors.CodePDFProcessingFailed, "page %d not found", pageNum)
	}
	return pageDict, ref, nil
}

// Write serializes the document
func (d *Document) Write(w io.Writer) error {
	if err := api.WriteContext(d.ctx, w); err != nil {
		return errors.Wrap(errors.CodePDFSaveFailed, "failed to write PDF", err)
	}
	return nil
}

// Bytes serializes the document into memory
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rectFromBox(box *types.Rectangle) detection.Rect {
	return detection.Rect{
		X:      box.LL.X,
		Y:      box.LL.Y,
		Width:  box.Width(),
		Height: box.Height(),
	}
}
