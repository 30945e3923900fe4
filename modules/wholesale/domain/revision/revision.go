// Package revision groups audit versions written by one import job.
package revision

import (
	"context"
	"encoding/json"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"
)

type Revision struct {
	ID         int64
	CreatedAt  time.Time
	User       string
	Comment    string
	ImportUUID uuid.UUID
}

// Version is an immutable snapshot of one row. Revert is an RFC 6902 patch
// that turns Snapshot back into the row's previous state; it is nil for
// rows the revision created.
type Version struct {
	ID         int64           `json:"id"`
	RevisionID int64           `json:"revision_id"`
	Model      string          `json:"model"`
	ObjectPK   int64           `json:"object_pk"`
	Snapshot   json.RawMessage `json:"snapshot"`
	Revert     json.RawMessage `json:"revert,omitempty"`
}

func Created(model string, pk int64, snapshot json.RawMessage) Version {
	return Version{Model: model, ObjectPK: pk, Snapshot: snapshot}
}

func Updated(model string, pk int64, before, after json.RawMessage) (Version, error) {
	patch, err := jsondiff.CompareJSON(after, before)
	if err != nil {
		return Version{}, err
	}
	raw := json.RawMessage("[]")
	if len(patch) > 0 {
		if raw, err = json.Marshal(patch); err != nil {
			return Version{}, err
		}
	}
	return Version{Model: model, ObjectPK: pk, Snapshot: after, Revert: raw}, nil
}

// Previous reconstructs the state the row had before this version. It returns
// nil for versions that created the row.
func (v Version) Previous() (json.RawMessage, error) {
	if len(v.Revert) == 0 {
		return nil, nil
	}
	patch, err := jsonpatch.DecodePatch(v.Revert)
	if err != nil {
		return nil, err
	}
	return patch.Apply(v.Snapshot)
}

type Repository interface {
	// Create writes rev and all versions under it; rev.ID is set on success.
	Create(ctx context.Context, rev *Revision, versions []Version) error
	ListByObject(ctx context.Context, model string, pk int64) ([]Version, error)
}
