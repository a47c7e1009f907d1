package domain

import "fmt"

// WarningKind classifies soft failures recorded while building a report
type WarningKind string

const (
	// WarningDataUnavailable means a quote or history could not be fetched
	WarningDataUnavailable WarningKind = "data_unavailable"
	// WarningInsufficientData means a series was too short or degenerate
	WarningInsufficientData WarningKind = "insufficient_data"
	// WarningModelFitting means a time-series model failed to fit
	WarningModelFitting WarningKind = "model_fitting_failure"
	// WarningBudgetExceeded means the request ran past its time budget
	WarningBudgetExceeded WarningKind = "budget_exceeded"
	// WarningStageFailure means a whole stage failed and was replaced by a default
	WarningStageFailure WarningKind = "stage_failure"
)

// Warning is a soft error attached to a report section
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Stage   string      `json:"stage"`
	Symbol  string      `json:"symbol,omitempty"`
	Message string      `json:"message"`
}

// NewWarning builds a warning with a formatted message
func NewWarning(kind WarningKind, stage, symbol, format string, args ...any) Warning {
	return Warning{
		Kind:    kind,
		Stage:   stage,
		Symbol:  symbol,
		Message: fmt.Sprintf(format, args...),
	}
}

func (w Warning) String() string {
	if w.Symbol == "" {
		return fmt.Sprintf("[%s] %s: %s", w.Stage, w.Kind, w.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", w.Stage, w.Kind, w.Symbol, w.Message)
}
