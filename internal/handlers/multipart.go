package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/videoup/videoup/internal/upload"
)

// MultipartHandler serves the multipart session endpoints.
type MultipartHandler struct {
	coord *upload.Coordinator
}

// NewMultipartHandler creates a MultipartHandler backed by coord.
func NewMultipartHandler(coord *upload.Coordinator) *MultipartHandler {
	return &MultipartHandler{coord: coord}
}

// StartMultipartInput is the request for POST /videos/start-multipart.
type StartMultipartInput struct {
	Body struct {
		FileName string `json:"fileName" minLength:"1" maxLength:"1024" doc:"Original name of the file being uploaded"`
	}
}

// StartMultipartOutput carries the capability pair for the new session.
type StartMultipartOutput struct {
	Body struct {
		Key      string `json:"key" doc:"Object key allocated for the upload"`
		UploadID string `json:"uploadId" doc:"Upload ID issued by the object store"`
	}
}

// PreSignedPartInput is the request for POST /videos/{key}/pre-signed-part.
type PreSignedPartInput struct {
	Key  string `path:"key" doc:"Object key returned by start-multipart"`
	Body struct {
		UploadID   string `json:"uploadId" minLength:"1" doc:"Upload ID returned by start-multipart"`
		PartNumber int    `json:"partNumber" doc:"Part number, starting at 1"`
	}
}

// PreSignedPartOutput carries the part upload URL.
type PreSignedPartOutput struct {
	Body struct {
		URL string `json:"url" doc:"Presigned URL to PUT the part bytes to"`
	}
}

// CompletedPart is one manifest entry of a completion request.
type CompletedPart struct {
	PartNumber int    `json:"partNumber" doc:"Part number"`
	ETag       string `json:"etag" doc:"ETag the object store returned for the part"`
}

// CompleteMultipartInput is the request for POST /videos/{key}/complete-multipart.
type CompleteMultipartInput struct {
	Key  string `path:"key" doc:"Object key returned by start-multipart"`
	Body struct {
		UploadID string          `json:"uploadId" minLength:"1" doc:"Upload ID returned by start-multipart"`
		Parts    []CompletedPart `json:"parts" doc:"Uploaded parts, in any order"`
	}
}

// Register adds the multipart operations to api.
func (h *MultipartHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "start-multipart",
		Method:      http.MethodPost,
		Path:        "/videos/start-multipart",
		Summary:     "Start a multipart upload",
		Tags:        []string{"Multipart"},
	}, h.StartMultipart)

	huma.Register(api, huma.Operation{
		OperationID: "pre-signed-part",
		Method:      http.MethodPost,
		Path:        "/videos/{key}/pre-signed-part",
		Summary:     "Authorize the upload of one part",
		Tags:        []string{"Multipart"},
	}, h.PreSignedPart)

	huma.Register(api, huma.Operation{
		OperationID:   "complete-multipart",
		Method:        http.MethodPost,
		Path:          "/videos/{key}/complete-multipart",
		Summary:       "Complete a multipart upload",
		Description:   "Assembles the listed parts. On failure the upload is aborted and must be started again.",
		Tags:          []string{"Multipart"},
		DefaultStatus: http.StatusOK,
	}, h.CompleteMultipart)
}

// StartMultipart opens a session for a new object.
func (h *MultipartHandler) StartMultipart(ctx context.Context, input *StartMultipartInput) (*StartMultipartOutput, error) {
	s, err := h.coord.StartSession(ctx, input.Body.FileName)
	if err != nil {
		return nil, toHumaError("StartMultipart", err)
	}
	out := &StartMultipartOutput{}
	out.Body.Key = s.Key
	out.Body.UploadID = s.UploadID
	return out, nil
}

// PreSignedPart issues the upload URL for one part.
func (h *MultipartHandler) PreSignedPart(ctx context.Context, input *PreSignedPartInput) (*PreSignedPartOutput, error) {
	u, err := h.coord.AuthorizePart(ctx, input.Key, input.Body.UploadID, input.Body.PartNumber)
	if err != nil {
		return nil, toHumaError("PreSignedPart", err)
	}
	out := &PreSignedPartOutput{}
	out.Body.URL = u
	return out, nil
}

// CompleteMultipart submits the part manifest. Success has an empty body.
func (h *MultipartHandler) CompleteMultipart(ctx context.Context, input *CompleteMultipartInput) (*struct{}, error) {
	manifest := make(upload.Manifest, 0, len(input.Body.Parts))
	for _, p := range input.Body.Parts {
		manifest = append(manifest, upload.PartDescriptor{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	if _, err := h.coord.CompleteSession(ctx, input.Key, input.Body.UploadID, manifest); err != nil {
		return nil, toHumaError("CompleteMultipart", err)
	}
	return &struct{}{}, nil
}
