package mediabank

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThemeSetValidate(t *testing.T) {
	t.Parallel()

	good := ThemeSet{Themes: []ThemeConfig{
		{Name: "a", ImagePaths: []string{"x.png"}},
		{Name: "b"},
	}}
	assert.NoError(t, good.Validate())

	assert.Error(t, ThemeSet{Themes: []ThemeConfig{{Name: "  "}}}.Validate())
	assert.Error(t, ThemeSet{Themes: []ThemeConfig{
		{Name: "dup"}, {Name: "DUP"},
	}}.Validate())
	assert.Error(t, ThemeSet{Themes: []ThemeConfig{
		{Name: "a", ImagePaths: []string{""}},
	}}.Validate())
}

func TestThemeSetEnabled(t *testing.T) {
	t.Parallel()

	set := ThemeSet{Themes: []ThemeConfig{
		{Name: "on", Enabled: true},
		{Name: "off"},
		{Name: "also", Enabled: true},
	}}
	enabled := set.Enabled()
	require.Len(t, enabled, 2)
	assert.Equal(t, "on", enabled[0].Name)
	assert.Equal(t, "also", enabled[1].Name)
}

func TestResolveMediaPath(t *testing.T) {
	t.Parallel()

	abs := filepath.Join(string(filepath.Separator), "elsewhere", "a.png")
	assert.Equal(t, abs, resolveMediaPath("/root", abs))
	assert.Equal(t, filepath.Join("/root", "th", "a.png"), resolveMediaPath("/root", "th/a.png"))
	assert.Equal(t, "th/a.png", resolveMediaPath("", "th/a.png"))
}

func TestScanThemeSet(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ocean := filepath.Join(root, "ocean")
	require.NoError(t, os.Mkdir(ocean, 0o755))
	for _, name := range []string{"a.png", "b.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(ocean, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(ocean, "wave.gif"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ocean, "clip.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ocean, "font.ttf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ocean, "lines.txt"),
		[]byte("first\n\n  second  \n"), 0o644))
	// Loose files at the root are not themes.
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.png"), []byte("x"), 0o644))

	empty := filepath.Join(root, "empty")
	require.NoError(t, os.Mkdir(empty, 0o755))

	set, err := ScanThemeSet(root)
	require.NoError(t, err)
	assert.Equal(t, root, set.Root)
	require.Len(t, set.Themes, 2)

	assert.Equal(t, "empty", set.Themes[0].Name)
	assert.False(t, set.Themes[0].HasMedia())

	theme := set.Themes[1]
	assert.Equal(t, "ocean", theme.Name)
	assert.True(t, theme.Enabled)
	assert.ElementsMatch(t, []string{
		filepath.Join("ocean", "a.png"), filepath.Join("ocean", "b.jpg"),
	}, theme.ImagePaths)
	// Animated formats land on the video side, GIFs included.
	assert.ElementsMatch(t, []string{
		filepath.Join("ocean", "wave.gif"), filepath.Join("ocean", "clip.mp4"),
	}, theme.VideoPaths)
	assert.Equal(t, []string{filepath.Join("ocean", "font.ttf")}, theme.FontPaths)
	assert.Equal(t, []string{"first", "second"}, theme.TextLines)
}

func TestScanThemeSetMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := ScanThemeSet(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
