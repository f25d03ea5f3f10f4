package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bass5068/bottle-redeem/internal/storage"
)

// formFile parses a size-capped multipart body and returns the named file, or the
// first file in the form when that field is absent. Errors are written to w.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
			return nil, nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_form")
		return nil, nil, false
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		for _, files := range r.MultipartForm.File {
			if len(files) > 0 {
				headers = files
				break
			}
		}
	}
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "missing_file")
		return nil, nil, false
	}
	header := headers[0]
	if header.Size > s.cfg.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
		return nil, nil, false
	}
	file, err := header.Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form")
		return nil, nil, false
	}
	return file, header, true
}

func (s *Server) saveImage(w http.ResponseWriter, r *http.Request, field, folder, name string) (string, bool) {
	if s.images == nil {
		writeError(w, http.StatusServiceUnavailable, "storage_not_configured")
		return "", false
	}
	file, _, ok := s.formFile(w, r, field)
	if !ok {
		return "", false
	}
	defer file.Close()
	return s.storeImage(w, r, file, folder, name)
}

// storeImage sniffs the upload's content type; only common raster formats are stored.
func (s *Server) storeImage(w http.ResponseWriter, r *http.Request, file io.Reader, folder, name string) (string, bool) {
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_form")
		return "", false
	}
	head = head[:n]
	ext, ok := storage.ImageExt(http.DetectContentType(head))
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_image")
		return "", false
	}
	url, err := s.images.Save(r.Context(), storage.Object{
		Folder: folder,
		Name:   name,
		Ext:    ext,
		Body:   io.MultiReader(bytes.NewReader(head), file),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return "", false
	}
	return url, true
}

func (s *Server) handleUploadRewardImage(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		writeError(w, http.StatusServiceUnavailable, "storage_not_configured")
		return
	}
	file, _, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}
	defer file.Close()
	rewardID := strings.TrimSpace(r.FormValue("rewardId"))
	if rewardID == "" {
		writeError(w, http.StatusBadRequest, "missing_reward_id")
		return
	}
	if _, err := s.svc.GetReward(r.Context(), rewardID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	url, ok := s.storeImage(w, r, file, "rewards", fmt.Sprintf("reward-%s-%d", rewardID, time.Now().UnixMilli()))
	if !ok {
		return
	}
	reward, err := s.svc.SetRewardImage(r.Context(), rewardID, url)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Image uploaded successfully",
		"imageUrl": url,
		"reward":   toRewardView(reward),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	url, ok := s.saveImage(w, r, "image", "point-redeem-app", fmt.Sprintf("%s-%d", actor.UserID, time.Now().UnixMilli()))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"imageUrl": url})
}

func (s *Server) handleUploadProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	url, ok := s.saveImage(w, r, "file", "profiles", fmt.Sprintf("profile-%s-%d", actor.UserID, time.Now().UnixMilli()))
	if !ok {
		return
	}
	if _, err := s.svc.SetUserImage(r.Context(), actor.UserID, url); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filePath": url})
}
