package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPathValidator(t *testing.T) {
	_, err := NewPathValidator("")
	assert.Error(t, err)

	v, err := NewPathValidator("/not/created/yet")
	require.NoError(t, err)
	assert.Equal(t, "/not/created/yet", v.GetConfiguredDirectory())
}

func TestPathValidator_ValidatePath(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "forms"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.pdf"), []byte("x"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.Symlink(filepath.Join(root, "forms"), filepath.Join(root, "alias")))

	v, err := NewPathValidator(root)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "root itself", path: root},
		{name: "file in root", path: filepath.Join(root, "a.pdf")},
		{name: "nested new file", path: filepath.Join(root, "forms", "new", "out.pdf")},
		{name: "symlink inside root", path: filepath.Join(root, "alias", "a.pdf")},
		{name: "empty", path: "", wantErr: true},
		{name: "null byte", path: filepath.Join(root, "a\x00.pdf"), wantErr: true},
		{name: "parent traversal", path: filepath.Join(root, "..", "a.pdf"), wantErr: true},
		{name: "absolute outside", path: filepath.Join(outside, "secret.pdf"), wantErr: true},
		{name: "symlink escape", path: filepath.Join(root, "escape", "secret.pdf"), wantErr: true},
		{name: "sibling with shared prefix", path: root + "-other/a.pdf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPathValidator_ValidateDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.pdf"), []byte("x"), 0o600))
	v, err := NewPathValidator(root)
	require.NoError(t, err)

	assert.NoError(t, v.ValidateDirectory(root))
	assert.NoError(t, v.ValidateDirectory(filepath.Join(root, "previews")))
	assert.ErrorContains(t, v.ValidateDirectory(filepath.Join(root, "a.pdf")), "not a directory")
	assert.Error(t, v.ValidateDirectory(filepath.Dir(root)))
}

func TestPathValidator_NormalizePath(t *testing.T) {
	root := t.TempDir()
	v, err := NewPathValidator(root)
	require.NoError(t, err)

	normalized, err := v.NormalizePath("forms/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "forms", "a.pdf"), normalized)

	_, err = v.NormalizePath("../a.pdf")
	assert.Error(t, err)

	_, err = v.NormalizePath("")
	assert.Error(t, err)
}

func TestPathValidator_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "later")
	v, err := NewPathValidator(root)
	require.NoError(t, err)

	within, err := v.IsPathWithinDirectory(filepath.Join(root, "a.pdf"))
	require.NoError(t, err)
	assert.True(t, within)

	within, err = v.IsPathWithinDirectory("/etc/passwd")
	require.NoError(t, err)
	assert.False(t, within)
}
