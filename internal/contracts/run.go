package contracts

import "time"

// UpdateReport summarizes one update run
// ⭐ SSOT: update 실행 결과
type UpdateReport struct {
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	WindowStart  time.Time         `json:"window_start"`
	WindowEnd    time.Time         `json:"window_end"`
	Bootstrapped bool              `json:"bootstrapped"`
	Total        int               `json:"total"`
	Success      int               `json:"success"`
	Empty        int               `json:"empty"` // provider returned nothing new
	Failed       int               `json:"failed"`
	RowsAppended int               `json:"rows_appended"`
	Failures     map[string]string `json:"failures,omitempty"` // code → error
	Succeeded    []string          `json:"succeeded,omitempty"`
	IndexErrors  map[string]string `json:"index_errors,omitempty"`
}

// Duration returns the wall time of the run
func (r *UpdateReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// AllFailed reports a run in which every attempted instrument failed
func (r *UpdateReport) AllFailed() bool {
	return r.Total > 0 && r.Failed == r.Total
}
