package common

import (
	"github.com/google/uuid"
)

// NewIntegrationID generates a unique integration ID with the "int_" prefix
// Format: int_<uuid>
func NewIntegrationID() string {
	return "int_" + uuid.New().String()
}

// NewTeamID generates a unique team ID with the "team_" prefix
func NewTeamID() string {
	return "team_" + uuid.New().String()
}

// NewJobID generates a unique sync job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewSnapshotID generates a unique metric snapshot ID with the "snap_" prefix
func NewSnapshotID() string {
	return "snap_" + uuid.New().String()
}
