package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// ImageInfo is the measured size of an image.
type ImageInfo struct {
	Width  int
	Height int
	Format string
}

// Prober measures image dimensions.
type Prober interface {
	Probe(ctx context.Context, data []byte) (ImageInfo, error)
}

// DecodeConfigProber reads only the image header.
type DecodeConfigProber struct{}

// Probe decodes the JPEG or PNG header of data.
func (DecodeConfigProber) Probe(_ context.Context, data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("decode image config: %w", err)
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}
