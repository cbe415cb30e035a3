// Package media turns an uploaded profile picture into fixed-size JPEG
// variants and stores them through an ObjectStore.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/logger"
	"github.com/hongminglow/expense-be/internal/models"
)

// MaxUploadBytes caps the size of an uploaded image.
const MaxUploadBytes = 5 << 20

// maxPixels rejects images whose header claims absurd dimensions before the
// pixel data is decoded.
const maxPixels = 40_000_000

// MsgUnsupportedImage is returned for payloads that are not decodable images.
const MsgUnsupportedImage = "Please upload a JPEG, PNG, GIF or WebP image."

// Variant is one output size.
type Variant struct {
	Name string
	Size int
}

// Variants are the square sizes produced for every upload.
var Variants = []Variant{
	{Name: "small", Size: 60},
	{Name: "medium", Size: 150},
	{Name: "large", Size: 300},
}

const jpegQuality = 85

// Resize decodes src and returns one JPEG per entry in Variants, keyed by
// variant name. Images are center-cropped to a square before scaling.
func Resize(src []byte) (map[string][]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, apperr.Validation(MsgUnsupportedImage).WithCause(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, apperr.Validation("Image dimensions are too large.")
	}
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, apperr.Validation(MsgUnsupportedImage).WithCause(err)
	}

	crop := squareCrop(img.Bounds())
	out := make(map[string][]byte, len(Variants))
	for _, v := range Variants {
		dst := image.NewRGBA(image.Rect(0, 0, v.Size, v.Size))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("encode %s variant: %w", v.Name, err)
		}
		out[v.Name] = buf.Bytes()
	}
	return out, nil
}

func squareCrop(b image.Rectangle) image.Rectangle {
	side := min(b.Dx(), b.Dy())
	x := b.Min.X + (b.Dx()-side)/2
	y := b.Min.Y + (b.Dy()-side)/2
	return image.Rect(x, y, x+side, y+side)
}

// ObjectStore is where variants end up. Keys are slash separated.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL maps a URL returned by Put back to its key.
	KeyFromURL(url string) (string, bool)
}

// ImageStore is the slice of the user store the uploader needs.
type ImageStore interface {
	FindByID(ctx context.Context, id int64) (models.User, error)
	UpdateImages(ctx context.Context, id int64, images models.ProfileImages) (models.User, error)
}

// Uploader replaces a user's profile picture.
type Uploader struct {
	objects ObjectStore
	users   ImageStore
	newID   func() string
}

// NewUploader builds an Uploader.
func NewUploader(objects ObjectStore, users ImageStore) *Uploader {
	return &Uploader{objects: objects, users: users, newID: func() string { return uuid.NewString() }}
}

// Key is the object key of a variant.
func Key(variant, id string) string {
	return fmt.Sprintf("users/profile-images/%s/%s.jpg", variant, id)
}

// ReplaceProfileImage stores new variants, points the user at them and then
// removes the previous ones. Old objects that fail to delete are only logged.
func (u *Uploader) ReplaceProfileImage(ctx context.Context, userID int64, src []byte) (models.User, error) {
	current, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	variants, err := Resize(src)
	if err != nil {
		return models.User{}, err
	}

	id := u.newID()
	var stored []string
	urls := make(map[string]string, len(Variants))
	for _, v := range Variants {
		key := Key(v.Name, id)
		url, err := u.objects.Put(ctx, key, variants[v.Name], "image/jpeg")
		if err != nil {
			u.remove(ctx, stored)
			return models.User{}, fmt.Errorf("store %s variant: %w", v.Name, err)
		}
		stored = append(stored, key)
		urls[v.Name] = url
	}

	updated, err := u.users.UpdateImages(ctx, userID, models.ProfileImages{
		Small:  urls["small"],
		Medium: urls["medium"],
		Large:  urls["large"],
	})
	if err != nil {
		u.remove(ctx, stored)
		return models.User{}, fmt.Errorf("update images: %w", err)
	}

	var old []string
	for _, url := range []string{current.Images.Small, current.Images.Medium, current.Images.Large} {
		if key, ok := u.objects.KeyFromURL(url); ok {
			old = append(old, key)
		}
	}
	u.remove(ctx, old)
	return updated, nil
}

func (u *Uploader) remove(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := u.objects.Delete(ctx, key); err != nil && !errors.Is(err, ErrObjectNotFound) {
			logger.FromContext(ctx).Warn().Err(err).Str("key", key).Msg("media: delete object failed")
		}
	}
}
