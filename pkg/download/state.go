package download

import "modelfetch/pkg/progress"

// Status is the lifecycle position of one record.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusExists     Status = "Exists"
	StatusError      Status = "Error"
)

// IsTerminal reports whether a record in this status will never change again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExists || s == StatusError
}

// GeneralStatus summarises a whole batch. It is derived, never stored.
type GeneralStatus string

const (
	GeneralIdle       GeneralStatus = "Idle"
	GeneralInProgress GeneralStatus = "InProgress"
	GeneralCompleted  GeneralStatus = "Completed"
	GeneralError      GeneralStatus = "Error"
	GeneralCancelled  GeneralStatus = "Cancelled"
)

// RecordState is the progress of one catalog item.
type RecordState struct {
	Status             Status             `json:"status"`
	Filename           string             `json:"filename,omitempty"`
	Destination        string             `json:"destination,omitempty"`
	Progress           *progress.Snapshot `json:"dl,omitempty"`
	PreviewFilename    string             `json:"preview_filename,omitempty"`
	PreviewDestination string             `json:"preview_destination,omitempty"`
	PreviewProgress    *progress.Snapshot `json:"preview_dl,omitempty"`
	Exception          string             `json:"exception,omitempty"`
	PreviewException   string             `json:"preview_exception,omitempty"`
}

// Clone returns a copy that shares no pointers with r.
func (r RecordState) Clone() RecordState {
	if r.Progress != nil {
		p := *r.Progress
		r.Progress = &p
	}
	if r.PreviewProgress != nil {
		p := *r.PreviewProgress
		r.PreviewProgress = &p
	}
	return r
}

// Equal compares field by field, following the snapshot pointers.
func (r RecordState) Equal(o RecordState) bool {
	return r.Status == o.Status &&
		r.Filename == o.Filename &&
		r.Destination == o.Destination &&
		snapshotEqual(r.Progress, o.Progress) &&
		r.PreviewFilename == o.PreviewFilename &&
		r.PreviewDestination == o.PreviewDestination &&
		snapshotEqual(r.PreviewProgress, o.PreviewProgress) &&
		r.Exception == o.Exception &&
		r.PreviewException == o.PreviewException
}

func snapshotEqual(a, b *progress.Snapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// OverallState is the aggregate view of a batch. Records is keyed by item id.
type OverallState struct {
	GeneralStatus GeneralStatus          `json:"general_status"`
	Records       map[string]RecordState `json:"records"`
	Exception     string                 `json:"exception,omitempty"`
}
