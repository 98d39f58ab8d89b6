package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"
)

// DefaultRenderTimeout bounds a single page render
const DefaultRenderTimeout = 60 * time.Second

// Renderer draws one page of a PDF at an exact pixel size
type Renderer interface {
	RenderPage(ctx context.Context, pdfPath string, page, width, height int) (image.Image, error)
}

// Source is a PDF materialized on disk for external renderers
type Source struct {
	Path string
	dir  string
}

// NewSource writes data into a private temporary directory
func NewSource(data []byte) (*Source, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("nanoid: %w", err)
	}

	dir := filepath.Join(os.TempDir(), "pdf-forms-"+id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(errors.CodeCanvasRenderFailed, "failed to create render directory", err)
	}

	path := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, errors.Wrap(errors.CodeCanvasRenderFailed, "failed to stage PDF for rendering", err)
	}

	return &Source{Path: path, dir: dir}, nil
}

// Close removes the temporary directory
func (s *Source) Close() error {
	if s == nil || s.dir == "" {
		return nil
	}
	return os.RemoveAll(s.dir)
}

// PdftoppmRenderer renders pages with poppler's pdftoppm
type PdftoppmRenderer struct {
	binary  string
	timeout time.Duration
	logger  logrus.FieldLogger
}

// NewPdftoppmRenderer creates a renderer using the given binary. An empty
// binary means "pdftoppm" from PATH.
func NewPdftoppmRenderer(binary string, timeout time.Duration, logger logrus.FieldLogger) *PdftoppmRenderer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PdftoppmRenderer{binary: binary, timeout: timeout, logger: logger}
}

// Available checks that the binary can be found
func (r *PdftoppmRenderer) Available() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", r.binary, err)
	}
	return nil
}

// RenderPage renders a 1-based page scaled to exactly width×height pixels
func (r *PdftoppmRenderer) RenderPage(ctx context.Context, pdfPath string, page, width, height int) (image.Image, error) {
	if err := r.Available(); err != nil {
		return nil, errors.Wrap(errors.CodeCanvasRenderFailed, "renderer unavailable", err)
	}

	outDir, err := os.MkdirTemp(filepath.Dir(pdfPath), "page-")
	if err != nil {
		return nil, errors.Wrap(errors.CodeCanvasRenderFailed, "failed to create page directory", err)
	}
	defer os.RemoveAll(outDir)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prefix := filepath.Join(outDir, "page")
	args := []string{
		"-png", "-singlefile", "-q",
		"-f", strconv.Itoa(page), "-l", strconv.Itoa(page),
		"-scale-to-x", strconv.Itoa(width),
		"-scale-to-y", strconv.Itoa(height),
		pdfPath, prefix,
	}

	r.logger.WithFields(logrus.Fields{
		"page":   page,
		"width":  width,
		"height": height,
	}).Debug("rendering page with pdftoppm")

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8")
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, errors.Newf(errors.CodeCanvasRenderFailed, "pdftoppm timed out after %s", r.timeout).WithPage(page)
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeCanvasRenderFailed,
			fmt.Sprintf("pdftoppm failed: %s", strings.TrimSpace(string(out))), err).WithPage(page)
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, errors.Wrap(errors.CodeCanvasRenderFailed, "pdftoppm produced no image", err).WithPage(page)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.CodeCanvasRenderFailed, "failed to decode rendered page", err).WithPage(page)
	}
	return img, nil
}
