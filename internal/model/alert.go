package model

// Type tags an alert. Any string is accepted; the constants below are the
// conventional set understood by the bundled templates.
type Type string

const (
	TypeAlert   Type = "alert"
	TypeError   Type = "error"
	TypeSuccess Type = "success"
	TypeInfo    Type = "info"
)

// Alert is one queued user-facing message.
type Alert struct {
	Type    Type   `json:"type"`
	Text    string `json:"text"`
	Subject string `json:"subject,omitempty"`
	Block   bool   `json:"block"`
}

// HasSubject reports whether the alert carries a heading.
func (a Alert) HasSubject() bool {
	return a.Subject != ""
}
