// handlers_files.go - File selection and extraction handlers
package api

import (
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/profile-desk/backend/internal/inspect"
	"github.com/profile-desk/backend/internal/models"
	"github.com/profile-desk/backend/internal/session"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	sessions *session.Manager
	policy   inspect.Policy
}

// NewFileHandler creates a new file handler
func NewFileHandler(sessions *session.Manager, policy inspect.Policy) FileHandler {
	return &FileHandlerImpl{sessions: sessions, policy: policy}
}

type addFilesResponse struct {
	Files    []models.FileRecord `json:"files"`
	Rejected []rejectedFile      `json:"rejected,omitempty"`
}

type rejectedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// HandleAddFiles stages every file of the multipart field "files". Files the
// policy rejects are reported without failing the rest.
func (h *FileHandlerImpl) HandleAddFiles(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart form", err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return NewValidationError("files", nil)
	}

	resp := addFilesResponse{Files: []models.FileRecord{}}
	var stageErr error
	for _, fh := range headers {
		if err := h.policy.Check(fh.Filename, fh.Size); err != nil {
			resp.Rejected = append(resp.Rejected, rejectedFile{Name: fh.Filename, Reason: err.Error()})
			continue
		}
		rec, err := h.stage(s, fh)
		if err != nil {
			zap.L().Error("failed to stage file", zap.String("session", s.ID), zap.String("file", fh.Filename), zap.Error(err))
			resp.Rejected = append(resp.Rejected, rejectedFile{Name: fh.Filename, Reason: "failed to stage file"})
			stageErr = err
			continue
		}
		resp.Files = append(resp.Files, rec)
	}

	if len(resp.Files) == 0 {
		if stageErr != nil {
			return NewInternalError("failed to stage file", stageErr)
		}
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    "VALIDATION_ERROR",
			Message: "no acceptable files",
			Details: resp.Rejected[0].Reason,
		}
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *FileHandlerImpl) stage(s *session.Session, fh *multipart.FileHeader) (models.FileRecord, error) {
	f, err := fh.Open()
	if err != nil {
		return models.FileRecord{}, err
	}
	defer f.Close()

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = "application/pdf"
	}
	return s.AddFile(fh.Filename, contentType, f)
}

// HandleListFiles returns the file records in selection order
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Store.Files())
}

// HandleExtractFile submits one file to the extraction service
func (h *FileHandlerImpl) HandleExtractFile(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}

	job, err := s.Submit(c.Param("fileId"))
	if err != nil {
		return err
	}
	zap.L().Debug("extraction submitted", zap.String("session", s.ID), zap.String("file", job.FileName))
	return c.JSON(http.StatusAccepted, job)
}

// HandleExtractAll submits every file that has not been submitted yet
func (h *FileHandlerImpl) HandleExtractAll(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"submitted": s.SubmitAll(),
	})
}
