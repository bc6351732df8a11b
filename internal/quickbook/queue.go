package quickbook

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Request is the patient-supplied portion of a quick-book job.
// PatientID comes from the session for patient callers and from the
// body for staff.
type Request struct {
	PatientID     string `json:"patientId"`
	TreatmentType string `json:"treatmentType"`
	Notes         string `json:"notes,omitempty"`
}

// queuePayload is the wire form of a job on the quick-book queue. The
// payload carries everything the worker needs so a job survives even if
// the job-store write raced the enqueue.
type queuePayload struct {
	ID            string `json:"id"`
	PatientID     string `json:"patientId"`
	TreatmentType string `json:"treatmentType"`
	Notes         string `json:"notes,omitempty"`
}

func (p queuePayload) request() Request {
	return Request{
		PatientID:     p.PatientID,
		TreatmentType: p.TreatmentType,
		Notes:         p.Notes,
	}
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("quickbook: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}
