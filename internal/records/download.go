package records

import (
	"fmt"

	"github.com/podkeep/podkeep/internal/shared"
)

// DownloadState identifies a position in the download lifecycle.
type DownloadState string

// The closed download state set.
const (
	DownloadNotRequested DownloadState = "not_requested"
	DownloadPending      DownloadState = "pending"
	DownloadInProgress   DownloadState = "in_progress"
	DownloadOk           DownloadState = "ok"
	DownloadError        DownloadState = "error"
)

// allowedTransitions encodes NotRequested -> Pending -> InProgress -> {Ok | Error},
// the cancel/delete edges back to NotRequested, and Error -> Pending for a
// re-requested failed download.
var allowedTransitions = map[DownloadState]map[DownloadState]struct{}{
	DownloadNotRequested: {DownloadPending: {}},
	DownloadPending:      {DownloadInProgress: {}, DownloadOk: {}, DownloadNotRequested: {}},
	DownloadInProgress:   {DownloadOk: {}, DownloadError: {}, DownloadNotRequested: {}},
	DownloadOk:           {DownloadNotRequested: {}},
	DownloadError:        {DownloadPending: {}, DownloadNotRequested: {}},
}

// DownloadStatus is the download portion of an item's Meta. Size is only
// meaningful in the Ok state, Error only in the error state.
type DownloadStatus struct {
	State DownloadState `json:"state"`
	Size  int64         `json:"size,omitempty"`
	Error string        `json:"error,omitempty"`
}

// Transition returns the status after moving to the given state, or an error
// if the edge is not part of the closed state set. Size and Error are reset
// unless the target state carries them.
func (s DownloadStatus) Transition(to DownloadState, size int64, errMsg string) (DownloadStatus, error) {
	if _, ok := allowedTransitions[s.State][to]; !ok {
		return s, fmt.Errorf("%w: %s -> %s", shared.ErrBadTransition, s.State, to)
	}
	next := DownloadStatus{State: to}
	switch to {
	case DownloadOk:
		next.Size = size
	case DownloadError:
		next.Error = errMsg
	}
	return next, nil
}

// Required reports whether the item is waiting for a download to happen.
func (s DownloadStatus) Required() bool {
	return s.State == DownloadPending || s.State == DownloadInProgress
}

// Complete reports whether a download is present on disk.
func (s DownloadStatus) Complete() bool {
	return s.State == DownloadOk
}
