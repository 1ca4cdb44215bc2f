// Package media validates and ingests event media (cover, carousel, video).
package media

import (
	"context"
	"path"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/totem-events/backend/internal/apperr"
	"github.com/totem-events/backend/internal/models"
)

const megabyte = 1024 * 1024

// Policy is the fixed acceptance rule for one variant.
type Policy struct {
	Variant      models.Variant
	Extensions   []string
	ContentTypes []string
	MaxBytes     int64
	Width        int
	Height       int
	Image        bool
}

var (
	imageExtensions   = []string{".jpg", ".jpeg", ".png"}
	imageContentTypes = []string{"image/jpeg", "image/png"}

	// extensionTypes is the content type each accepted extension must carry.
	extensionTypes = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".mp4":  "video/mp4",
	}

	coverPolicy = Policy{
		Variant: models.VariantCover, Extensions: imageExtensions, ContentTypes: imageContentTypes,
		MaxBytes: 5 * megabyte, Width: 1080, Height: 1920, Image: true,
	}
	carouselPolicy = Policy{
		Variant: models.VariantCarousel, Extensions: imageExtensions, ContentTypes: imageContentTypes,
		MaxBytes: 5 * megabyte, Width: 1080, Height: 1920, Image: true,
	}
	videoPolicy = Policy{
		Variant: models.VariantVideo, Extensions: []string{".mp4"}, ContentTypes: []string{"video/mp4"},
		MaxBytes: 25 * megabyte, Width: 1080, Height: 1920,
	}
)

// PolicyFor returns the policy of v.
func PolicyFor(v models.Variant) (Policy, error) {
	switch v {
	case models.VariantCover:
		return coverPolicy, nil
	case models.VariantCarousel:
		return carouselPolicy, nil
	case models.VariantVideo:
		return videoPolicy, nil
	}
	return Policy{}, apperr.Validationf("variant", "unknown media variant %q", v)
}

// FileDescriptor is a raw uploaded file.
type FileDescriptor struct {
	Filename    string
	ContentType string // as declared by the client
	Data        []byte
}

// Size returns the file size in bytes.
func (f FileDescriptor) Size() int64 { return int64(len(f.Data)) }

// ValidatedFile is a file accepted for a variant, with its final dimensions.
type ValidatedFile struct {
	File        FileDescriptor
	Policy      Policy
	Ext         string
	ContentType string
	Width       int
	Height      int
}

// Validator applies variant policies. Images are measured with the Prober.
type Validator struct {
	prober Prober
}

// NewValidator creates a validator. A nil prober uses DecodeConfigProber.
func NewValidator(prober Prober) *Validator {
	if prober == nil {
		prober = DecodeConfigProber{}
	}
	return &Validator{prober: prober}
}

// Validate checks f against the policy of variant. It never touches storage.
func (v *Validator) Validate(ctx context.Context, f FileDescriptor, variant models.Variant) (ValidatedFile, error) {
	if f.Size() == 0 {
		return ValidatedFile{}, apperr.Validation("file", "file is empty")
	}
	policy, err := PolicyFor(variant)
	if err != nil {
		return ValidatedFile{}, err
	}

	ext := strings.ToLower(path.Ext(f.Filename))
	if !slices.Contains(policy.Extensions, ext) {
		return ValidatedFile{}, apperr.Validationf("file", "extension %q not allowed for %s (allowed: %s)",
			ext, variant, strings.Join(policy.Extensions, ", "))
	}
	declared := normalizeContentType(f.ContentType)
	if !slices.Contains(policy.ContentTypes, declared) {
		return ValidatedFile{}, apperr.Validationf("file", "content type %q not allowed for %s", declared, variant)
	}
	detected := mimetype.Detect(f.Data)
	if !slices.ContainsFunc(policy.ContentTypes, detected.Is) {
		return ValidatedFile{}, apperr.Validationf("file", "file content is %s, not a valid %s file", detected.String(), variant)
	}
	if !detected.Is(declared) {
		return ValidatedFile{}, apperr.Validationf("file", "file content is %s but was declared as %s", detected.String(), declared)
	}
	if !detected.Is(extensionTypes[ext]) {
		return ValidatedFile{}, apperr.Validationf("file", "file content is %s, which does not match extension %q", detected.String(), ext)
	}
	if f.Size() > policy.MaxBytes {
		return ValidatedFile{}, apperr.Validationf("file", "file exceeds %d MB limit for %s", policy.MaxBytes/megabyte, variant)
	}

	out := ValidatedFile{File: f, Policy: policy, Ext: ext, ContentType: declared, Width: policy.Width, Height: policy.Height}
	if !policy.Image {
		return out, nil
	}

	info, err := v.prober.Probe(ctx, f.Data)
	if err != nil {
		return ValidatedFile{}, apperr.Internal("probe image metadata", err)
	}
	if err := CheckDimensions(policy, info.Width, info.Height); err != nil {
		return ValidatedFile{}, err
	}
	out.Width, out.Height = info.Width, info.Height
	return out, nil
}

// CheckDimensions requires an exact pixel size match.
func CheckDimensions(p Policy, width, height int) error {
	if width != p.Width || height != p.Height {
		return apperr.Validationf("file", "wrong dimensions for %s: expected %dx%d, got %dx%d", p.Variant, p.Width, p.Height, width, height)
	}
	return nil
}

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
