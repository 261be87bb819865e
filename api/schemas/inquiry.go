package schemas

import "time"

// DefaultAssignedStaff is stored when a row does not name the attending staff member.
const DefaultAssignedStaff = "NAF UNIFOR"

// InquiryRecord is one citizen's tax-assistance request as stored in the database.
// JSON tags keep the field names the operator UI already sends and reads.
type InquiryRecord struct {
	ID               string    `json:"_id"`
	TaxpayerName     string    `json:"nome_contribuinte"`
	TaxpayerIDNumber string    `json:"cpf"`
	Category         string    `json:"tipo_duvida"`
	Detail           string    `json:"duvida_principal"`
	AssignedStaff    string    `json:"atendente_responsavel"`
	CreatedAt        time.Time `json:"data_registro"`
	Processed        bool      `json:"processado"`
}

// SortOrder orders records by creation time.
type SortOrder int

const (
	// OldestFirst gives the first-in-first-out bias used for automation batches.
	OldestFirst SortOrder = iota
	NewestFirst
)

// RecordFilter selects inquiry records from the store.
// A non-empty IDs restricts the result to those ids; ids that do not exist are
// simply absent from the result.
type RecordFilter struct {
	IDs             []string
	OnlyUnprocessed bool
	Order           SortOrder
}

// OutcomeStatus is the overall result of one automation batch.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// SubmissionOutcome summarizes one automation batch for the request layer.
type SubmissionOutcome struct {
	Status         OutcomeStatus `json:"status"`
	Message        string        `json:"message"`
	TotalProcessed int           `json:"totalProcessed"`
	TotalRequested int           `json:"totalRequested,omitempty"`
	ErrorDetail    string        `json:"errorDetail,omitempty"`
}

// Succeeded reports whether every requested record was submitted.
func (o SubmissionOutcome) Succeeded() bool {
	return o.Status == OutcomeSuccess
}
