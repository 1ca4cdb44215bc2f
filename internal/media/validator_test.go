package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totem-events/backend/internal/apperr"
	"github.com/totem-events/backend/internal/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

// mp4Bytes returns an ISO base media header followed by padding.
func mp4Bytes(size int) []byte {
	head := []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0, 'i', 's', 'o', 'm', 'm', 'p', '4', '1'}
	if size < len(head) {
		size = len(head)
	}
	out := make([]byte, size)
	copy(out, head)
	return out
}

func TestValidateAcceptsPolicyFiles(t *testing.T) {
	v := NewValidator(nil)
	ctx := context.Background()

	vf, err := v.Validate(ctx, FileDescriptor{Filename: "capa.PNG", ContentType: "image/png", Data: pngBytes(t, 1080, 1920)}, models.VariantCover)
	require.NoError(t, err)
	assert.Equal(t, ".png", vf.Ext)
	assert.Equal(t, 1080, vf.Width)
	assert.Equal(t, 1920, vf.Height)

	vf, err = v.Validate(ctx, FileDescriptor{Filename: "slide.jpg", ContentType: "image/jpeg; charset=binary", Data: jpegBytes(t, 1080, 1920)}, models.VariantCarousel)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", vf.ContentType)

	vf, err = v.Validate(ctx, FileDescriptor{Filename: "clip.mp4", ContentType: "video/mp4", Data: mp4Bytes(4096)}, models.VariantVideo)
	require.NoError(t, err)
	assert.Equal(t, models.VariantVideo, vf.Policy.Variant)
}

func TestValidateRejections(t *testing.T) {
	cover := pngBytes(t, 1080, 1920)
	tests := []struct {
		name     string
		file     FileDescriptor
		variant  models.Variant
		contains string
	}{
		{"empty", FileDescriptor{Filename: "a.png", ContentType: "image/png"}, models.VariantCover, "empty"},
		{"unknown variant", FileDescriptor{Filename: "a.png", ContentType: "image/png", Data: cover}, "banner", "unknown media variant"},
		{"extension", FileDescriptor{Filename: "a.gif", ContentType: "image/png", Data: cover}, models.VariantCover, `extension ".gif"`},
		{"video extension on image", FileDescriptor{Filename: "a.mp4", ContentType: "video/mp4", Data: mp4Bytes(64)}, models.VariantCover, "not allowed for cover"},
		{"declared type", FileDescriptor{Filename: "a.png", ContentType: "image/gif", Data: cover}, models.VariantCover, `content type "image/gif"`},
		{"content sniff", FileDescriptor{Filename: "a.png", ContentType: "image/png", Data: []byte("%PDF-1.7 not an image")}, models.VariantCover, "not a valid cover file"},
		{"content differs from declared type", FileDescriptor{Filename: "a.jpg", ContentType: "image/jpeg", Data: cover}, models.VariantCarousel, "declared as image/jpeg"},
		{"content differs from extension", FileDescriptor{Filename: "a.jpg", ContentType: "image/png", Data: cover}, models.VariantCover, `does not match extension ".jpg"`},
		{"jpeg named png", FileDescriptor{Filename: "a.png", ContentType: "image/jpeg", Data: jpegBytes(t, 1080, 1920)}, models.VariantCover, `does not match extension ".png"`},
		{"video sniff", FileDescriptor{Filename: "a.mp4", ContentType: "video/mp4", Data: cover}, models.VariantVideo, "not a valid video file"},
		{"video too large", FileDescriptor{Filename: "a.mp4", ContentType: "video/mp4", Data: mp4Bytes(25*megabyte + 1)}, models.VariantVideo, "25 MB"},
		{"wrong dimensions", FileDescriptor{Filename: "a.png", ContentType: "image/png", Data: pngBytes(t, 1920, 1080)}, models.VariantCarousel, "expected 1080x1920, got 1920x1080"},
	}
	v := NewValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tt.file, tt.variant)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "kind %s", apperr.KindOf(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

type stubProber struct {
	info ImageInfo
	err  error
}

func (s stubProber) Probe(context.Context, []byte) (ImageInfo, error) { return s.info, s.err }

func TestValidateImageSizeLimit(t *testing.T) {
	// Pad a valid header past 5 MB; the stub stands in for the decoder.
	data := append(pngBytes(t, 8, 8), make([]byte, 5*megabyte)...)
	v := NewValidator(stubProber{info: ImageInfo{Width: 1080, Height: 1920}})

	_, err := v.Validate(context.Background(), FileDescriptor{Filename: "a.png", ContentType: "image/png", Data: data}, models.VariantCover)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5 MB")
}

func TestValidateProbeFailureIsInternal(t *testing.T) {
	v := NewValidator(stubProber{err: errors.New("decoder crashed")})

	_, err := v.Validate(context.Background(), FileDescriptor{Filename: "a.png", ContentType: "image/png", Data: pngBytes(t, 4, 4)}, models.VariantCover)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestCheckDimensions(t *testing.T) {
	assert.NoError(t, CheckDimensions(coverPolicy, 1080, 1920))

	err := CheckDimensions(videoPolicy, 720, 1280)
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "file", ae.Field)
	assert.Equal(t, "wrong dimensions for video: expected 1080x1920, got 720x1280", ae.Message)
}

func TestDecodeConfigProber(t *testing.T) {
	info, err := DecodeConfigProber{}.Probe(context.Background(), jpegBytes(t, 30, 20))
	require.NoError(t, err)
	assert.Equal(t, ImageInfo{Width: 30, Height: 20, Format: "jpeg"}, info)

	_, err = DecodeConfigProber{}.Probe(context.Background(), []byte("nope"))
	assert.Error(t, err)
}
