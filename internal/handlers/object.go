package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/videoup/videoup/internal/upload"
)

// maxFormMemory is how much of a multipart form is buffered in memory
// before the rest spills to temporary files.
const maxFormMemory = 32 << 20

// formOverhead allows for multipart boundaries and headers on top of the
// file itself.
const formOverhead = 1 << 20

// ObjectHandler serves whole-object uploads: presigned single-shot URLs and
// the direct upload path.
type ObjectHandler struct {
	coord   *upload.Coordinator
	maxSize int64
}

// NewObjectHandler creates an ObjectHandler. maxSize bounds direct upload
// bodies; zero means unbounded.
func NewObjectHandler(coord *upload.Coordinator, maxSize int64) *ObjectHandler {
	return &ObjectHandler{coord: coord, maxSize: maxSize}
}

// PreSignedInput is the request for POST /videos/pre-signed.
type PreSignedInput struct {
	Body struct {
		FileName string `json:"fileName" minLength:"1" maxLength:"1024" doc:"Original name of the file being uploaded"`
	}
}

// PreSignedOutput carries the allocated key and its upload URL.
type PreSignedOutput struct {
	Body struct {
		Key string `json:"key" doc:"Object key allocated for the upload"`
		URL string `json:"url" doc:"Presigned URL to PUT the whole file to"`
	}
}

// DirectUploadResponse is the body of a 202 from POST /videos/upload.
type DirectUploadResponse struct {
	FileID string `json:"fileId"`
}

// Register adds the single-shot operation to api.
func (h *ObjectHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "pre-signed",
		Method:      http.MethodPost,
		Path:        "/videos/pre-signed",
		Summary:     "Authorize a single-shot upload",
		Tags:        []string{"Single-shot"},
	}, h.PreSigned)
}

// PreSigned allocates a key and authorizes one whole-object PUT to it.
func (h *ObjectHandler) PreSigned(ctx context.Context, input *PreSignedInput) (*PreSignedOutput, error) {
	key, u, err := h.coord.NewSingleShot(ctx, input.Body.FileName)
	if err != nil {
		return nil, toHumaError("PreSigned", err)
	}
	out := &PreSignedOutput{}
	out.Body.Key = key
	out.Body.URL = u
	return out, nil
}

// Upload handles POST /videos/upload. The file arrives in the "file" field
// of a multipart form and is relayed to the object store in one PUT.
func (h *ObjectHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+formOverhead)
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		writeProblem(w, http.StatusBadRequest, "request must be a multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "form field \"file\" is required")
		return
	}
	defer file.Close()

	key, err := h.coord.UploadDirect(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeProblem(w, logFailure("Upload", err), errorMessage(err))
		return
	}

	slog.Debug("Direct upload accepted", "key", key)
	writeJSON(w, http.StatusAccepted, DirectUploadResponse{FileID: key})
}
