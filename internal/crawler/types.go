package crawler

import (
	"net/http"
	"time"
)

// Crawl log status codes that are not HTTP responses.
const (
	// StatusPending marks a URL that was discovered but not fetched yet.
	StatusPending = 0
	// StatusFetchFailed marks a URL whose fetch failed below the HTTP layer.
	StatusFetchFailed = 599
	// StatusExcluded marks a URL skipped by an exclusion rule.
	StatusExcluded = 777
)

// NoteDiscovered tags log entries harvested from rewritten documents.
const NoteDiscovered = "discovered"

// URLRecord is one entry in the crawl log.
type URLRecord struct {
	URL    string
	Status int
	Note   string
}

// ContentType is the processing class of a fetched document.
type ContentType string

// Supported content classes.
const (
	ContentHTML   ContentType = "html"
	ContentCSS    ContentType = "css"
	ContentText   ContentType = "text"
	ContentBinary ContentType = "binary"
)

// FetchRequest describes a single page fetch against the live site.
type FetchRequest struct {
	URL string
}

// FetchResponse is what the fetcher returns for one URL.
type FetchResponse struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentTypeHeader returns the response's Content-Type header.
func (r FetchResponse) ContentTypeHeader() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// Phase names the state the crawl was in when a batch ran.
type Phase string

// Crawl phases.
const (
	PhasePrimary   Phase = "primary"
	PhaseDiscovery Phase = "discovery"
	PhaseDone      Phase = "done"
)

// StepResult summarizes one crawl batch.
type StepResult struct {
	Phase      Phase `json:"phase"`
	Processed  int   `json:"processed"`
	Written    int   `json:"written"`
	Excluded   int   `json:"excluded"`
	Failed     int   `json:"failed"`
	Discovered int   `json:"discovered"`
	Remaining  int   `json:"remaining"`
	Done       bool  `json:"done"`
}

// validStatuses are the responses whose bodies are written to the archive.
var validStatuses = map[int]struct{}{
	http.StatusOK:               {},
	http.StatusCreated:          {},
	http.StatusMovedPermanently: {},
	http.StatusFound:            {},
	http.StatusNotModified:      {},
}

// IsValidStatus reports whether a response code counts as success.
func IsValidStatus(code int) bool {
	_, ok := validStatuses[code]
	return ok
}
