package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/http/respond"
	"github.com/hongminglow/expense-be/internal/media"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/models/dto"
)

const (
	msgImageRequired = "Please upload an image in the image field."
	msgImageTooLarge = "Image must be 5 MB or smaller."
)

// ProfileImageReplacer stores a new avatar for a user.
type ProfileImageReplacer interface {
	ReplaceProfileImage(ctx context.Context, userID int64, src []byte) (models.User, error)
}

// MediaHandler accepts profile picture uploads.
type MediaHandler struct {
	uploader ProfileImageReplacer
	guards   Guards
}

// NewMediaHandler constructs the handler.
func NewMediaHandler(uploader ProfileImageReplacer, guards Guards) *MediaHandler {
	return &MediaHandler{uploader: uploader, guards: guards}
}

// Register attaches the upload route to the mux.
func (h *MediaHandler) Register(mux *http.ServeMux) {
	mux.Handle("PATCH "+APIPrefix+"/users/profile-image", h.guards.protected(h.handleProfileImage))
}

func (h *MediaHandler) handleProfileImage(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	data, err := readImage(w, r)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	user, err := h.uploader.ReplaceProfileImage(r.Context(), me.ID, data)
	if err != nil {
		h.guards.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "Profile image updated successfully!", dto.UserResponse{User: user})
}

// readImage pulls the "image" part out of a multipart body.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	// Leave headroom for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadBytes+64<<10)
	if err := r.ParseMultipartForm(media.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation(msgImageTooLarge)
		}
		return nil, apperr.Validation(msgImageRequired).WithCause(err)
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, apperr.Validation(msgImageRequired).WithCause(err)
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		return nil, apperr.Validation(media.MsgUnsupportedImage)
	}
	if header.Size > media.MaxUploadBytes {
		return nil, apperr.Validation(msgImageTooLarge)
	}
	data, err := io.ReadAll(io.LimitReader(file, media.MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > media.MaxUploadBytes {
		return nil, apperr.Validation(msgImageTooLarge)
	}
	return data, nil
}
