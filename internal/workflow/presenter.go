package workflow

import "github.com/meteoci/station-export/internal/domain"

// Severity classifies a toast notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Presenter is the presentation surface consumed by the engine. It
// receives state and discrete events; it never owns state and never
// feeds data back except through user actions routed into the store.
// A nil result in RenderAvailability/RenderEstimate retracts the
// corresponding section. Implementations must not call back into the
// engine from inside these methods.
type Presenter interface {
	RenderState(snap domain.SelectionState, gates Gates)
	RenderAvailability(res *domain.AvailabilityResult)
	RenderEstimate(res *domain.EstimateResult)
	FocusStation(id string)
	Toast(message string, severity Severity)
	Progress(percent int, label string)
}
