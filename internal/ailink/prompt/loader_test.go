package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	prompts, err := LoadDefaults()
	require.NoError(t, err)
	require.NotEmpty(t, prompts)

	reg, err := NewRegistry(prompts)
	require.NoError(t, err)

	prompt, err := reg.Get("storefront-audit")
	require.NoError(t, err)
	require.NotEmpty(t, prompt.Config.SystemTemplate)
	require.True(t, prompt.Config.Input.AcceptsImages)
	require.Equal(t, []string{"url"}, prompt.Config.Input.RequiredVariables)
	require.NotEmpty(t, prompt.Schema)
}

func TestLoadRejectsInvalidPrompts(t *testing.T) {
	_, err := Load("empty.md", []byte("   "))
	require.Error(t, err)

	_, err = Load("noslug.md", []byte("---\nname: x\n---\nbody"))
	require.ErrorContains(t, err, "invalid slug")

	_, err = Load("nosystem.md", []byte("---\nslug: ok\n---\n"))
	require.ErrorContains(t, err, "missing system_template")

	_, err = Load("images.md", []byte("---\nslug: ok\ninput:\n  max_images: 2\n---\nbody"))
	require.ErrorContains(t, err, "accepts_images")
}

func TestLoadBodyBecomesSystemTemplate(t *testing.T) {
	p, err := Load("inline.md", []byte("---\nslug: inline-test\nuser_template: \"{{url}}\"\n---\nYou grade pages."))
	require.NoError(t, err)
	require.Equal(t, "You grade pages.", p.Config.SystemTemplate)
	require.Nil(t, p.Schema)
}

func TestDefaultRegistryOverlay(t *testing.T) {
	dir := t.TempDir()
	custom := "---\nslug: storefront-audit\nname: custom\n---\nCustom auditor."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audit.md"), []byte(custom), 0o600))

	reg, err := DefaultRegistry(dir)
	require.NoError(t, err)
	p, err := reg.Get("storefront-audit")
	require.NoError(t, err)
	require.Equal(t, "custom", p.Config.Name)

	_, err = reg.Get("missing")
	require.Error(t, err)
}

func TestSplitFrontmatter(t *testing.T) {
	front, body, fenced := splitFrontmatter("---\nslug: a\n---\nline one\nline two")
	require.True(t, fenced)
	require.Equal(t, "slug: a", front)
	require.Equal(t, "line one\nline two", body)

	front, body, fenced = splitFrontmatter("---\nslug: a\nname: open")
	require.True(t, fenced)
	require.Equal(t, "slug: a\nname: open", front)
	require.Empty(t, body)

	_, body, fenced = splitFrontmatter("slug: a\nsystem_template: hi")
	require.False(t, fenced)
	require.Equal(t, "slug: a\nsystem_template: hi", body)
}

func TestLoadBareYAML(t *testing.T) {
	p, err := Load("bare.yaml", []byte("slug: bare-test\nsystem_template: Grade it."))
	require.NoError(t, err)
	require.Equal(t, "Grade it.", p.Config.SystemTemplate)
}

func TestOverrideRejectsDuplicateOverrides(t *testing.T) {
	base, err := Load("a.md", []byte("---\nslug: shared\n---\nbase"))
	require.NoError(t, err)
	reg, err := NewRegistry([]*Prompt{base})
	require.NoError(t, err)

	one, err := Load("one.md", []byte("---\nslug: shared\n---\none"))
	require.NoError(t, err)
	two, err := Load("two.md", []byte("---\nslug: shared\n---\ntwo"))
	require.NoError(t, err)

	require.NoError(t, reg.override([]*Prompt{one}))
	got, err := reg.Get("shared")
	require.NoError(t, err)
	require.Equal(t, "one", got.Config.SystemTemplate)

	require.ErrorContains(t, reg.override([]*Prompt{one, two}), "duplicate prompt slug")
	_, err = NewRegistry([]*Prompt{base, one})
	require.ErrorContains(t, err, "duplicate prompt slug")
}
