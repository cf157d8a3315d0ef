package mediabank

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// maxThemeFileSize caps how much of a theme definition file is read.
const maxThemeFileSize = 1 << 20

// themeFile is the on-disk JSON shape. Two forms are accepted: a
// "themes" array, or a "theme_map" object keyed by theme name (the
// map key wins over any embedded name). Files ending in .zst are
// decompressed transparently.
type themeFile struct {
	Root     string                 `json:"root"`
	Themes   []ThemeConfig          `json:"themes"`
	ThemeMap map[string]ThemeConfig `json:"theme_map"`
}

// LoadThemeSet reads a theme definition file. Relative media paths in
// the file resolve against the "root" field when present, otherwise
// against the file's directory.
func LoadThemeSet(path string) (ThemeSet, error) {
	data, err := readThemeFile(path)
	if err != nil {
		return ThemeSet{}, err
	}
	data = bytes.TrimPrefix(data, []byte{0xef, 0xbb, 0xbf})

	var tf themeFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return ThemeSet{}, fmt.Errorf("load themes %s: %w", path, err)
	}
	if len(tf.Themes) > 0 && len(tf.ThemeMap) > 0 {
		return ThemeSet{}, fmt.Errorf("load themes %s: both themes and theme_map present", path)
	}

	set := ThemeSet{Root: tf.Root, Themes: tf.Themes}
	if set.Root == "" {
		set.Root = filepath.Dir(path)
	}
	if len(tf.ThemeMap) > 0 {
		names := make([]string, 0, len(tf.ThemeMap))
		for name := range tf.ThemeMap {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t := tf.ThemeMap[name]
			t.Name = name
			set.Themes = append(set.Themes, t)
		}
	}

	if err := set.Validate(); err != nil {
		return ThemeSet{}, fmt.Errorf("load themes %s: %w", path, err)
	}
	return set, nil
}

func readThemeFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load themes: %w", err)
	}
	defer f.Close()

	var r io.Reader = io.LimitReader(f, maxThemeFileSize+1)
	if strings.EqualFold(filepath.Ext(path), ".zst") {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("load themes %s: %w", path, err)
		}
		defer zr.Close()
		r = io.LimitReader(zr.IOReadCloser(), maxThemeFileSize+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("load themes %s: %w", path, err)
	}
	if len(data) > maxThemeFileSize {
		return nil, fmt.Errorf("load themes %s: file exceeds %d bytes", path, maxThemeFileSize)
	}
	return data, nil
}
