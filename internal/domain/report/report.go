// Package report defines reporting outputs.
package report

import "time"

// Utilization summarizes prescription activity in a period.
type Utilization struct {
	From               time.Time      `json:"from"`
	To                 time.Time      `json:"to"`
	TotalPrescriptions int            `json:"total_prescriptions"`
	ByStatus           map[string]int `json:"by_status"`
	ByPharmacy         map[string]int `json:"by_pharmacy"`
}
