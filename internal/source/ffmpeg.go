package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strings"
)

// ffmpegDecoder shells out to ffmpeg and reads an MJPEG stream from its
// stdout, one JPEG per decoded frame.
type ffmpegDecoder struct {
	source     string
	ffmpegPath string
	cmd        *exec.Cmd
	stdout     *bufio.Reader
	buf        bytes.Buffer
}

func (d *ffmpegDecoder) Open(ctx context.Context) error {
	args := []string{"-hide_banner", "-loglevel", "error"}
	switch {
	case strings.HasPrefix(d.source, "/dev/video"):
		args = append(args, "-f", "v4l2", "-i", d.source)
	case strings.HasPrefix(d.source, "rtsp://"):
		args = append(args, "-rtsp_transport", "tcp", "-i", d.source)
	default:
		args = append(args, "-i", d.source)
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-")

	path := d.ffmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, path, args...)
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg for %s: %w", d.source, err)
	}
	d.cmd = cmd
	d.stdout = bufio.NewReaderSize(pipe, 1<<20)
	return nil
}

// Next scans the MJPEG byte stream for the next SOI..EOI marker pair and
// decodes the enclosed JPEG.
func (d *ffmpegDecoder) Next() (image.Image, error) {
	if d.stdout == nil {
		return nil, io.EOF
	}
	if err := d.syncToSOI(); err != nil {
		return nil, err
	}
	d.buf.Reset()
	d.buf.Write([]byte{0xFF, 0xD8})
	var prev byte
	for {
		b, err := d.stdout.ReadByte()
		if err != nil {
			return nil, err
		}
		d.buf.WriteByte(b)
		if prev == 0xFF && b == 0xD9 {
			break
		}
		prev = b
	}
	img, err := jpeg.Decode(bytes.NewReader(d.buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decode mjpeg frame: %w", err)
	}
	return img, nil
}

func (d *ffmpegDecoder) syncToSOI() error {
	var prev byte
	for {
		b, err := d.stdout.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == 0xD8 {
			return nil
		}
		prev = b
	}
}

func (d *ffmpegDecoder) Close() error {
	if d.cmd == nil {
		return nil
	}
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	err := d.cmd.Wait()
	d.cmd = nil
	d.stdout = nil
	if err != nil && !strings.Contains(err.Error(), "killed") {
		return err
	}
	return nil
}
