package domain

// ExportRequest is the full tuple sent to the estimate and download
// endpoints. Validation tags back the orchestrator's defense-in-depth
// check; a disabled control should already prevent an incomplete
// request, but the orchestrator does not trust UI state alone.
type ExportRequest struct {
	Stations    []string    `json:"stations" validate:"required,min=1,dive,required"`
	Params      []string    `json:"params" validate:"required,min=1,dive,required"`
	StartDate   string      `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string      `json:"end_date" validate:"required,datetime=2006-01-02"`
	Granularity Granularity `json:"granularity" validate:"required,oneof=U X H J"`
}

// ExportRequestFrom builds the wire request for the live selection.
// Unset dates become empty strings and fail validation downstream.
func ExportRequestFrom(s SelectionState) ExportRequest {
	return ExportRequest{
		Stations:    append([]string(nil), s.Stations...),
		Params:      append([]string(nil), s.Params...),
		StartDate:   formatDateOrEmpty(s.Start),
		EndDate:     formatDateOrEmpty(s.End),
		Granularity: s.Granularity,
	}
}
