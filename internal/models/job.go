package models

import "time"

// Infinite ETA sentinel understood by qBittorrent API consumers
const InfiniteETA = 8640000

// DownloadJob represents one download tracked by the client shim.
// The hash doubles as the torrent hash reported over the WebUI API.
type DownloadJob struct {
	Hash string `boltholdKey:"Hash"`

	Name        string
	OriginalURL string // URL carried by the placeholder file
	ResolvedURL string // After bypass and debrid resolution
	Filename    string // Discovered from headers, falls back to Name

	State    JobState `boltholdIndex:"State"`
	Category string   `boltholdIndex:"Category"`
	SavePath string
	Priority int

	// Progress accounting. TotalSize never decreases once known.
	TotalSize    int64
	Downloaded   int64
	Speed        int64 // bytes per second
	ResumeOffset int64 // bytes already on disk before the current transfer

	FailureReason string

	AddedAt     time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	ProgressAt  time.Time // last progress event, drives stall detection
}

// Progress returns completion as a fraction in [0, 1]
func (j *DownloadJob) Progress() float64 {
	if j.State == JobStateCompleted {
		return 1.0
	}
	if j.TotalSize <= 0 {
		return 0.0
	}
	p := float64(j.Downloaded) / float64(j.TotalSize)
	if p > 1.0 {
		p = 1.0
	}
	return p
}

// ETA estimates remaining seconds, or the infinite sentinel when unknowable
func (j *DownloadJob) ETA() int64 {
	if j.State == JobStateCompleted {
		return 0
	}
	if j.Speed <= 0 || j.TotalSize <= 0 {
		return InfiniteETA
	}
	remaining := j.TotalSize - j.Downloaded
	if remaining <= 0 {
		return 0
	}
	eta := remaining / j.Speed
	if eta > InfiniteETA {
		return InfiniteETA
	}
	return eta
}
