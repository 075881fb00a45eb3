package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique crawl job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewListingID generates a unique canonical listing ID with the "lst_" prefix
func NewListingID() string {
	return "lst_" + uuid.New().String()
}

// NewGroupID generates a unique dedup group ID with the "grp_" prefix
func NewGroupID() string {
	return "grp_" + uuid.New().String()
}

// NewMatchID generates a unique comp match ID with the "cmp_" prefix
func NewMatchID() string {
	return "cmp_" + uuid.New().String()
}

// NewLogID generates a unique fetch log ID with the "log_" prefix
func NewLogID() string {
	return "log_" + uuid.New().String()
}
