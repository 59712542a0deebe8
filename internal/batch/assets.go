package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// AssetStore removes tile assets. Deleting an absent asset is not an error.
type AssetStore interface {
	Delete(tileID string) error
}

// DirAssets stores tiles as <Dir>/<tileID><Ext>
type DirAssets struct {
	Dir string
	Ext string // defaults to .png
}

// Path returns the file of a tile
func (d DirAssets) Path(tileID string) string {
	ext := d.Ext
	if ext == "" {
		ext = ".png"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(d.Dir, tileID+ext)
}

// Delete implements AssetStore
func (d DirAssets) Delete(tileID string) error {
	if tileID == "" || strings.ContainsAny(tileID, `/\`) || tileID == ".." {
		return fmt.Errorf("invalid tile id %q", tileID)
	}
	err := os.Remove(d.Path(tileID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete tile %s: %w", tileID, err)
	}
	return nil
}
