package models

// ContentType represents the kind of work a release belongs to
type ContentType string

const (
	ContentTypeMovie  ContentType = "movie"
	ContentTypeSeries ContentType = "series"
	ContentTypeAnime  ContentType = "anime"
	ContentTypeEbook  ContentType = "ebook"
)

// AllContentTypes lists every content type in a stable order
var AllContentTypes = []ContentType{
	ContentTypeMovie,
	ContentTypeSeries,
	ContentTypeAnime,
	ContentTypeEbook,
}

// JobState represents the lifecycle state of a download job
type JobState string

const (
	JobStateQueued      JobState = "queued"
	JobStateChecking    JobState = "checking"    // Link verification and resolution in progress
	JobStateDownloading JobState = "downloading" // Transfer subprocess running
	JobStatePaused      JobState = "paused"
	JobStateCompleted   JobState = "completed"
	JobStateError       JobState = "error"
	JobStateStalled     JobState = "stalled" // No progress within the stall window
)

// Active reports whether the state occupies a concurrency slot
func (s JobState) Active() bool {
	return s == JobStateChecking || s == JobStateDownloading
}

// Terminal reports whether the job reached a final state.
// Stalled and error jobs can still be requeued by a resume.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateError || s == JobStateStalled
}
