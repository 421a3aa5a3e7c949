// Package types contains read shapes shared by queries and the HTTP layer.
package types

// Standing is one resolved leaderboard row, best first.
type Standing struct {
	Rank     int     `json:"rank"`
	EntityID int64   `json:"entity_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// Stat is the read-only projection of one numeric record field.
type Stat struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Priority *int    `json:"priority,omitempty"`
}

// Board is a named top-N snapshot.
type Board struct {
	Name      string     `json:"name"`
	Template  string     `json:"template"`
	Standings []Standing `json:"standings"`
}
