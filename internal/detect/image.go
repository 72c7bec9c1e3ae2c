package detect

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"vigil/internal/model"
)

// maxCropSide bounds the longest side of a crop sent to the analyzer.
const maxCropSide = 256

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeBase64JPEG(img image.Image) (string, error) {
	data, err := encodeJPEG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// cropRegion cuts the bounding box out of the frame, clamped to the frame
// bounds, and scales it down when it exceeds maxCropSide.
func cropRegion(img image.Image, box model.BoundingBox) (image.Image, error) {
	bounds := img.Bounds()
	rect := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("bounding box outside frame: %+v", box)
	}
	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Copy(crop, image.Point{}, img, rect, draw.Src, nil)

	w, h := crop.Bounds().Dx(), crop.Bounds().Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxCropSide {
		return crop, nil
	}
	scale := float64(maxCropSide) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), crop, crop.Bounds(), draw.Src, nil)
	return dst, nil
}
