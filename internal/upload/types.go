// Package upload implements the multipart upload coordination core: bucket
// provisioning, session start, per-part and single-shot URL issuance, and
// completion with compensating abort.
//
// Nothing here keeps session state between calls. The object store is the
// system of record; (key, uploadID) pairs are forwarded as supplied.
package upload

import (
	"fmt"

	uperr "github.com/videoup/videoup/internal/errors"
	"github.com/videoup/videoup/internal/storage"
)

// Metadata keys recorded on every uploaded object.
const (
	MetaScanStatus = "scan-status"
	MetaFileName   = "file-name"

	// ScanStatusPending marks an object no scanner has looked at yet.
	ScanStatusPending = "PENDING"
)

// State is the lifecycle position of a multipart session.
type State int

const (
	StateInitiated State = iota
	StateCompleting
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "initiated"
	case StateCompleting:
		return "completing"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Session is a started multipart upload. It is returned to the caller and
// never stored.
type Session struct {
	Key      string
	UploadID string
	FileName string
	State    State
}

// PartDescriptor references one uploaded part.
type PartDescriptor struct {
	PartNumber int
	ETag       string
}

// Manifest lists the parts to assemble. Order is irrelevant.
type Manifest []PartDescriptor

// Validate checks every entry against the part number range [1, maxPart],
// rejects duplicate part numbers and empty ETags. An empty manifest is
// valid here; the store decides what to make of it.
func (m Manifest) Validate(maxPart int) error {
	seen := make(map[int]struct{}, len(m))
	for _, p := range m {
		if p.PartNumber < 1 || p.PartNumber > maxPart {
			return uperr.InvalidArgument("part number %d is outside [1, %d]", p.PartNumber, maxPart)
		}
		if _, dup := seen[p.PartNumber]; dup {
			return uperr.InvalidArgument("part number %d is listed more than once", p.PartNumber)
		}
		if p.ETag == "" {
			return uperr.InvalidArgument("part %d has an empty etag", p.PartNumber)
		}
		seen[p.PartNumber] = struct{}{}
	}
	return nil
}

func (m Manifest) parts() []storage.Part {
	parts := make([]storage.Part, len(m))
	for i, p := range m {
		parts[i] = storage.Part{PartNumber: p.PartNumber, ETag: p.ETag}
	}
	return parts
}

// Completion is the outcome of closing a session.
type Completion struct {
	Key      string
	UploadID string
	// Location identifies the assembled object. Set only when State is
	// StateCompleted.
	Location string
	State    State
}

func objectMetadata(fileName string) map[string]string {
	return map[string]string{
		MetaScanStatus: ScanStatusPending,
		MetaFileName:   fileName,
	}
}
