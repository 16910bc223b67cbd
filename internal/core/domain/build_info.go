package domain

import "time"

// BuildInfo is the record of a target's last successful build.
type BuildInfo struct {
	Target     string    `json:"target,omitzero"`
	InputHash  string    `json:"input_hash,omitzero"`
	OutputHash string    `json:"output_hash,omitzero"`
	Installed  []string  `json:"installed,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
}
