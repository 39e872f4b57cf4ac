package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/auth"
	"taskdesk/pkg/user"
)

// maxImageSize caps profile image uploads.
const maxImageSize = 5 << 20

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ *user.User) error {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	sess, err := s.auth.Register(r.Context(), in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, sess)
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ *user.User) error {
	var req struct {
		Handle string `json:"handle"`
		Secret string `json:"secret"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	sess, err := s.auth.Login(r.Context(), req.Handle, req.Secret)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sess)
	return nil
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	writeJSON(w, http.StatusOK, caller)
	return nil
}

func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	var in auth.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	sess, err := s.auth.UpdateProfile(r.Context(), caller, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sess)
	return nil
}

// handleUploadImage stores a JPEG or PNG sent as the multipart field "image"
// and returns the URL it is served from.
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	if s.uploadDir == "" {
		return apperr.Configuration("upload directory is not configured")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+(1<<20))
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.Validation("image must be at most %d MiB", maxImageSize>>20)
		}
		return apperr.Validation("expected a multipart form with an image field")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		return apperr.Validation("image field is required")
	}
	defer file.Close()
	if header.Size > maxImageSize {
		return apperr.Validation("image must be at most %d MiB", maxImageSize>>20)
	}

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return apperr.Validation("image is empty or unreadable")
	}
	ext, ok := imageTypes[http.DetectContentType(sniff[:n])]
	if !ok {
		return apperr.Validation("only JPEG and PNG images are accepted")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return apperr.Internal(err, "failed to read upload")
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return apperr.Internal(err, "failed to prepare upload directory")
	}
	name := uuid.Must(uuid.NewV7()).String() + ext
	dst, err := os.OpenFile(filepath.Join(s.uploadDir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Internal(err, "failed to store upload")
	}
	if _, err := io.Copy(dst, io.LimitReader(file, maxImageSize)); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return apperr.Internal(err, "failed to store upload")
	}
	if err := dst.Close(); err != nil {
		return apperr.Internal(err, "failed to store upload")
	}

	s.log.WithField("operation", "auth.upload_image").WithField("user_id", caller.ID).WithField("file", name).Info("image stored")
	writeJSON(w, http.StatusCreated, map[string]string{"image_url": publicURL(r, "/uploads/"+name)})
	return nil
}

func publicURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, path)
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid JSON: %v", err)
	}
	return nil
}

// readBody reads a size-limited raw body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperr.Validation("failed to read request body")
	}
	return data, nil
}
