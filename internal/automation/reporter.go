package automation

import (
	"net/http"

	"github.com/xkilldash9x/nafauto/api/schemas"
)

// Level tells the operator UI how to present an outcome.
type Level string

const (
	LevelSuccess Level = "success"
	LevelPartial Level = "partial"
	LevelError   Level = "error"
)

// Acknowledgment is an outcome mapped for the calling layer.
type Acknowledgment struct {
	StatusCode int
	Level      Level
	Outcome    schemas.SubmissionOutcome
}

// Report maps a batch outcome to an acknowledgment. A failure that still
// submitted records is partial; one that submitted nothing is an error.
func Report(o schemas.SubmissionOutcome) Acknowledgment {
	ack := Acknowledgment{Outcome: o}
	switch {
	case o.Succeeded():
		ack.StatusCode, ack.Level = http.StatusOK, LevelSuccess
	case o.TotalProcessed > 0:
		ack.StatusCode, ack.Level = http.StatusOK, LevelPartial
	default:
		ack.StatusCode, ack.Level = http.StatusInternalServerError, LevelError
	}
	return ack
}
