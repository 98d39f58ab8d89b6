package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/a3tai/mcp-pdf-forms/internal/inference"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/acroform"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-forms/internal/pdf/wrapper"
	"github.com/a3tai/mcp-pdf-forms/internal/testutil"
	"github.com/a3tai/mcp-pdf-forms/internal/testutil/fakes"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fakeBackend(engine inference.Engine) backendFactory {
	return func(*options, logrus.FieldLogger) (inference.Engine, raster.Renderer, func()) {
		return engine, fakes.Renderer{}, func() {}
	}
}

func TestRootCmd(t *testing.T) {
	dir := t.TempDir()
	input := testutil.WriteFile(t, dir, "intake.pdf", testutil.FlatFormPDF(t))
	output := filepath.Join(dir, "fillable.pdf")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(fakeBackend(fakes.NewEngine(fakes.LetterFields)))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--confidence=0.6", "-o", output, "--model", "models/FFDNet-S.onnx", input})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "Model: FFDNet-S (confidence 0.6)")
	assert.Contains(t, stdout.String(), "Fillable PDF: "+output+" (3 fields)")
	assert.FileExists(t, output)
}

func TestRootCmd_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no input", args: []string{}},
		{name: "two inputs", args: []string{"a.pdf", "b.pdf"}},
		{name: "confidence out of range", args: []string{"--confidence=2", "a.pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd(fakeBackend(fakes.NewEngine(nil)))
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestRun_WritesFillablePDF(t *testing.T) {
	dir := t.TempDir()
	input := testutil.WriteFile(t, dir, "intake.pdf", testutil.FlatFormPDF(t))
	reportPath := filepath.Join(dir, "report.json")

	opts := &options{model: "models/FFDNet-S.onnx", confidence: 0.4, report: reportPath}
	var stdout bytes.Buffer
	err := run(context.Background(), opts, input, fakes.NewEngine(fakes.LetterFields), fakes.Renderer{}, quietLogger(), &stdout)
	require.NoError(t, err)

	output := filepath.Join(dir, "intake_with_fields.pdf")
	assert.Contains(t, stdout.String(), "Fillable PDF: "+output+" (3 fields)")
	assert.Contains(t, stdout.String(), "Model: FFDNet-S")

	doc, err := wrapper.Load(testutil.ReadFile(t, output))
	require.NoError(t, err)
	fields, err := acroform.ListFields(doc)
	require.NoError(t, err)
	assert.Len(t, fields, 3)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(testutil.ReadFile(t, reportPath), &decoded))
	assert.EqualValues(t, 3, decoded["field_count"])
	assert.Equal(t, output, decoded["output"])
}

func TestRun_DetectOnlyReportToStdout(t *testing.T) {
	dir := t.TempDir()
	input := testutil.WriteFile(t, dir, "intake.pdf", testutil.FlatFormPDF(t, testutil.Letter, testutil.Letter))
	previews := filepath.Join(dir, "previews")

	opts := &options{model: "models/FFDNet-L.onnx", confidence: 0.4, report: "-", detectOnly: true, previews: previews}
	var stdout bytes.Buffer
	err := run(context.Background(), opts, input, fakes.NewEngine(fakes.LetterFields), fakes.Renderer{}, quietLogger(), &stdout)
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, 2, decoded.PageCount)
	assert.Equal(t, 6, decoded.FieldCount)
	assert.Equal(t, "FFDNet-L", decoded.ModelIdentifier)
	assert.Empty(t, decoded.Output)
	assert.Empty(t, decoded.Fields)
	require.Len(t, decoded.Previews, 2)
	for _, p := range decoded.Previews {
		assert.FileExists(t, p)
	}
	assert.NoFileExists(t, filepath.Join(dir, "intake_with_fields.pdf"))
}

func TestRun_MissingInput(t *testing.T) {
	opts := &options{confidence: 0.4}
	err := run(context.Background(), opts, filepath.Join(t.TempDir(), "missing.pdf"),
		fakes.NewEngine(nil), fakes.Renderer{}, quietLogger(), io.Discard)
	assert.ErrorContains(t, err, "failed to read")
}
