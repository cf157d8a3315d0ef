package mediabank

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/driftglass/mediabank/media"
)

// ThemeConfig describes one media collection. Paths may be absolute or
// relative to the theme set's root. A config is immutable once handed
// to a bank; replacing themes means building a new bank.
type ThemeConfig struct {
	Name       string   `json:"name"`
	Enabled    bool     `json:"enabled"`
	ImagePaths []string `json:"image_paths"`
	VideoPaths []string `json:"video_paths"`
	FontPaths  []string `json:"font_paths"`
	TextLines  []string `json:"text_lines"`
}

// HasMedia reports whether the theme supplies any images or videos.
func (t ThemeConfig) HasMedia() bool {
	return len(t.ImagePaths) > 0 || len(t.VideoPaths) > 0
}

func (t ThemeConfig) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("theme with empty name")
	}
	for _, p := range t.ImagePaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("theme %q: empty image path", t.Name)
		}
	}
	for _, p := range t.VideoPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("theme %q: empty video path", t.Name)
		}
	}
	return nil
}

// ThemeSet is a validated collection of themes plus the root directory
// relative paths resolve against.
type ThemeSet struct {
	Root   string
	Themes []ThemeConfig
}

// Validate checks every theme and rejects duplicate names.
func (s ThemeSet) Validate() error {
	seen := make(map[string]bool, len(s.Themes))
	for _, t := range s.Themes {
		if err := t.validate(); err != nil {
			return err
		}
		key := strings.ToLower(t.Name)
		if seen[key] {
			return fmt.Errorf("duplicate theme name %q", t.Name)
		}
		seen[key] = true
	}
	return nil
}

// Enabled returns the enabled themes in declaration order.
func (s ThemeSet) Enabled() []ThemeConfig {
	var out []ThemeConfig
	for _, t := range s.Themes {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// resolveMediaPath joins a relative media path to the set root;
// absolute paths pass through.
func resolveMediaPath(root, p string) string {
	if filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}

// ScanThemeSet builds a theme set from a directory tree: every
// immediate subdirectory of root becomes one enabled theme. Within a
// theme directory, GIFs and video files feed VideoPaths, other image
// files feed ImagePaths, .txt files contribute one text line per
// non-empty line, and font files fill FontPaths. Stored paths are
// relative to root.
func ScanThemeSet(root string) (ThemeSet, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return ThemeSet{}, fmt.Errorf("scan themes: %w", err)
	}

	set := ThemeSet{Root: root}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		theme, err := scanThemeDir(root, e.Name())
		if err != nil {
			return ThemeSet{}, err
		}
		set.Themes = append(set.Themes, theme)
	}
	if err := set.Validate(); err != nil {
		return ThemeSet{}, fmt.Errorf("scan themes: %w", err)
	}
	return set, nil
}

func scanThemeDir(root, name string) (ThemeConfig, error) {
	theme := ThemeConfig{Name: name, Enabled: true}
	dir := filepath.Join(root, name)

	files, err := os.ReadDir(dir)
	if err != nil {
		return ThemeConfig{}, fmt.Errorf("scan theme %s: %w", name, err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		rel := filepath.Join(name, f.Name())
		switch {
		case media.IsVideoPath(f.Name()):
			// GIF counts as both; animated content plays as video.
			theme.VideoPaths = append(theme.VideoPaths, rel)
		case media.IsImagePath(f.Name()):
			theme.ImagePaths = append(theme.ImagePaths, rel)
		case isFontPath(f.Name()):
			theme.FontPaths = append(theme.FontPaths, rel)
		case strings.EqualFold(filepath.Ext(f.Name()), ".txt"):
			lines, err := readTextLines(filepath.Join(dir, f.Name()))
			if err != nil {
				return ThemeConfig{}, fmt.Errorf("scan theme %s: %w", name, err)
			}
			theme.TextLines = append(theme.TextLines, lines...)
		}
	}
	return theme, nil
}

func isFontPath(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ttf", ".otf":
		return true
	}
	return false
}

func readTextLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
