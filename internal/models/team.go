package models

import "time"

// Team groups the integrations whose metrics are aggregated together
// on the dashboard. Deleting a team is a soft-delete (Active=false) so
// historical snapshots keep resolving.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
