// Package filecam implements [device.Camera] over a directory of image
// files. Each Grab returns the next image in lexical filename order,
// wrapping around at the end. It stands in for real camera hardware in
// development setups and headless environments.
package filecam

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kolan-ai/kolan/pkg/device"
)

// Camera cycles through the image files of a directory.
type Camera struct {
	mu    sync.Mutex
	files []string
	next  int
}

var _ device.Camera = (*Camera)(nil)

// Open scans dir for .jpg, .jpeg, and .png files and returns a camera over
// them. It fails if the directory cannot be read or holds no usable images.
func Open(dir string) (*Camera, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("filecam: open %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("filecam: no images in %s", dir)
	}
	sort.Strings(files)
	return &Camera{files: files}, nil
}

// Grab implements [device.Camera]. It decodes and returns the next image in
// the cycle.
func (c *Camera) Grab(_ context.Context) (image.Image, error) {
	c.mu.Lock()
	path := c.files[c.next]
	c.next = (c.next + 1) % len(c.files)
	c.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filecam: grab %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("filecam: decode %s: %w", path, err)
	}
	return img, nil
}

// Close implements [device.Camera]. The camera holds no open handles between
// grabs, so Close is a no-op.
func (c *Camera) Close() error { return nil }
