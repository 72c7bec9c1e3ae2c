package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "image/jpeg"
	_ "image/png"
)

// Decoder owns one capture handle and yields decoded frames one at a time.
// Next returns io.EOF when the stream ends normally.
type Decoder interface {
	Open(ctx context.Context) error
	Next() (image.Image, error)
	Close() error
}

// NewDecoder picks a decoder for the configured source. A directory of
// still images plays back as a finite stream; everything else (device
// node, file, RTSP/HTTP URL) goes through ffmpeg.
func NewDecoder(source, ffmpegPath string) Decoder {
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		return &imageDirDecoder{dir: source}
	}
	return &ffmpegDecoder{source: source, ffmpegPath: ffmpegPath}
}

// imageDirDecoder replays a directory of jpeg/png stills in lexical order.
type imageDirDecoder struct {
	dir   string
	files []string
	pos   int
}

func (d *imageDirDecoder) Open(ctx context.Context) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("open image dir %s: %w", d.dir, err)
	}
	d.files = d.files[:0]
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			d.files = append(d.files, filepath.Join(d.dir, entry.Name()))
		}
	}
	if len(d.files) == 0 {
		return fmt.Errorf("no image files in %s", d.dir)
	}
	sort.Strings(d.files)
	d.pos = 0
	return nil
}

func (d *imageDirDecoder) Next() (image.Image, error) {
	if d.pos >= len(d.files) {
		return nil, io.EOF
	}
	path := d.files[d.pos]
	d.pos++
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (d *imageDirDecoder) Close() error {
	d.files = nil
	return nil
}
