// Package screenshot stores browser screenshots on disk: the login QR code the
// operator has to scan, and snapshots taken when a poll cycle fails.
package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// Config configures screenshot storage.
type Config struct {
	// StorageDir is where screenshots are written. Created on NewManager.
	StorageDir string

	// MaxScreenshots bounds the files kept in StorageDir. Oldest go first.
	// Zero keeps everything.
	MaxScreenshots int

	// MaxWidth downscales saved screenshots wider than this. Zero keeps the
	// original size.
	MaxWidth int
}

// Manager saves and rotates screenshots.
type Manager struct {
	config Config
}

// NewManager creates a new screenshot manager.
func NewManager(cfg *Config) *Manager {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.StorageDir != "" {
		_ = os.MkdirAll(c.StorageDir, 0755)
	}
	return &Manager{config: c}
}

// Dir returns the storage directory.
func (m *Manager) Dir() string {
	return m.config.StorageDir
}

// Save writes a PNG screenshot and returns its path. Wide images are scaled
// down to Config.MaxWidth first.
func (m *Manager) Save(data []byte, name string) (string, error) {
	if m.config.StorageDir == "" {
		return "", fmt.Errorf("screenshot storage dir not configured")
	}

	if m.config.MaxWidth > 0 {
		scaled, err := Scale(data, m.config.MaxWidth)
		if err == nil {
			data = scaled
		}
	}

	filename := fmt.Sprintf("%s_%s_%s.png",
		time.Now().Format("20060102_150405"),
		sanitizeFilename(name),
		uuid.New().String()[:8])
	path := filepath.Join(m.config.StorageDir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	if m.config.MaxScreenshots > 0 {
		m.cleanup()
	}
	return path, nil
}

// List returns saved screenshot paths, oldest first.
func (m *Manager) List() ([]string, error) {
	if m.config.StorageDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(m.config.StorageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read screenshot dir: %w", err)
	}

	type file struct {
		path string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !isScreenshotFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{filepath.Join(m.config.StorageDir, e.Name()), info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].path < files[j].path
		}
		return files[i].mod.Before(files[j].mod)
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// Clear removes all screenshots. Other files are left alone.
func (m *Manager) Clear() error {
	paths, err := m.List()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// cleanup removes the oldest screenshots beyond MaxScreenshots.
func (m *Manager) cleanup() {
	paths, err := m.List()
	if err != nil {
		return
	}
	for len(paths) > m.config.MaxScreenshots {
		_ = os.Remove(paths[0])
		paths = paths[1:]
	}
}

// Scale downscales a PNG to maxWidth, keeping the aspect ratio. Images that
// already fit are returned as-is. Nearest-neighbour keeps QR modules sharp.
func Scale(data []byte, maxWidth int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	bounds := img.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return data, nil
	}

	newHeight := bounds.Dy() * maxWidth / bounds.Dx()
	if newHeight < 1 {
		newHeight = 1
	}
	resized := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
	draw.NearestNeighbor.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitizeFilename keeps letters, digits, '-' and '_' and turns spaces into
// underscores.
func sanitizeFilename(s string) string {
	if s == "" {
		return "screenshot"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "screenshot"
	}
	if len(out) > 50 {
		out = out[:50]
	}
	return out
}

func isScreenshotFile(name string) bool {
	return strings.HasSuffix(name, ".png")
}
