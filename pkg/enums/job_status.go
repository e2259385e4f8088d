package enums

// JobStatus tracks the lifecycle of a generation job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSuccess    JobStatus = "success"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusSuccess, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
