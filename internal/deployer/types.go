package deployer

import "time"

// Item pairs a local archive file with the path it takes on the target.
// RemotePath is archive-relative and slash separated.
type Item struct {
	LocalPath  string
	RemotePath string
}

// CacheEntry remembers the last content hash sent to a target namespace.
type CacheEntry struct {
	PathHash    string
	LocalPath   string
	ContentHash string
	Namespace   string
}

// File is an item loaded into memory and ready to transfer.
type File struct {
	Item
	Body []byte
	Hash string
}

// StepResult summarises one Step call.
type StepResult struct {
	Processed int  `json:"processed"`
	Uploaded  int  `json:"uploaded"`
	Skipped   int  `json:"skipped"`
	Dropped   int  `json:"dropped"`
	Remaining int  `json:"remaining"`
	Done      bool `json:"done"`
	Finalized bool `json:"finalized"`
}

// Event is published once a deployment has drained its queue.
type Event struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Namespace  string    `json:"namespace"`
	Archive    string    `json:"archive"`
	Path       string    `json:"path"`
	FinishedAt time.Time `json:"finished_at"`
}

// EventDeployFinished names the post-deploy notification.
const EventDeployFinished = "deploy.finished"
