package domain

import "time"

// AttributeFilter matches entries whose converted attribute equals Value.
type AttributeFilter struct {
	Name  string
	Value Value
}

// EntryQuery describes a hierarchical entry search.
type EntryQuery struct {
	LogbookID          *int64
	IncludeDescendants bool
	IncludeArchived    bool
	Limit              int
	Offset             int

	Content        string
	Title          string
	Author         string
	AttachmentPath string
	IgnoreCase     bool
	Attributes     []AttributeFilter
}

// HasTextFilter reports whether a content, title or author filter is set.
// Such filters return matching entries individually instead of per thread.
func (q EntryQuery) HasTextFilter() bool {
	return q.Content != "" || q.Title != "" || q.Author != ""
}

// ThreadSummary is one search result row.
type ThreadSummary struct {
	Entry      Entry      `json:"entry"`
	Logbook    LogbookRef `json:"logbook"`
	NFollowups int        `json:"nFollowups"`
	Timestamp  time.Time  `json:"timestamp"`
	Preview    string     `json:"contentPreview"`
}

// LogbookRef is the short form of a logbook shown alongside entries.
type LogbookRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SearchResult is a page of threads plus the total number of matches.
type SearchResult struct {
	Threads []ThreadSummary `json:"entries"`
	Total   int             `json:"count"`
}

// HistogramBucket counts thread roots created on one day.
type HistogramBucket struct {
	Date    string `json:"date"`
	FirstID int64  `json:"firstId"`
	Count   int    `json:"count"`
}
