package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApplicationAttribute is the attribute key naming the reporting application.
// It feeds the library-name dedup component.
const ApplicationAttribute = "application.name"

// Frame is a single stack frame of a crash report.
type Frame struct {
	Function string `json:"funcName"`
	Library  string `json:"library,omitempty"`
	File     string `json:"path,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// Report is a captured crash or error ready for persistence.
//
// The payload written to disk is the JSON encoding of the report. Attachments
// are referenced by path and are never embedded in the payload.
type Report struct {
	// UUID identifies the report. It becomes the on-disk record identifier.
	UUID string `json:"uuid"`

	// Timestamp is the capture time.
	Timestamp time.Time `json:"timestamp"`

	// Message is the exception or log message.
	Message string `json:"message"`

	// Classifier lists the exception type names.
	Classifier []string `json:"classifiers,omitempty"`

	// StackTrace holds the captured frames, innermost first.
	StackTrace []Frame `json:"stackTrace,omitempty"`

	// Attributes are free-form key/value annotations.
	Attributes map[string]string `json:"attributes,omitempty"`

	// Attachments are file paths shipped alongside the report.
	Attachments []string `json:"attachments,omitempty"`

	// Fingerprint overrides the computed dedup hash when non-empty.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// New creates a report with a fresh UUID and the current timestamp.
func New(message string) *Report {
	return &Report{
		UUID:      uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Message:   message,
	}
}

// Application returns the application name attribute.
func (r *Report) Application() string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[ApplicationAttribute]
}

// SetAttribute sets a single attribute, allocating the map on first use.
func (r *Report) SetAttribute(key, value string) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]string)
	}
	r.Attributes[key] = value
}

// Validate checks that the report can be persisted.
func (r *Report) Validate() error {
	if r == nil {
		return errors.New("report is nil")
	}
	if r.UUID == "" {
		return errors.New("report uuid is required")
	}
	if _, err := uuid.Parse(r.UUID); err != nil {
		return fmt.Errorf("report uuid %q is invalid: %w", r.UUID, err)
	}
	return nil
}

// Marshal encodes the report as its on-disk payload.
func (r *Report) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report %s: %w", r.UUID, err)
	}
	return data, nil
}

// Unmarshal decodes a payload produced by Marshal.
func Unmarshal(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
