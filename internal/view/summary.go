package view

import "fmt"

// Summary holds the call counters.
type Summary struct {
	Total   int `yaml:"total"`
	Visible int `yaml:"visible"`
}

func (s Summary) String() string {
	return fmt.Sprintf("Calls: %d (%d shown)", s.Total, s.Visible)
}
