package types

// TriggerNotification is the transition metadata block of the trigger payload.
// One canonical shape; payloads nesting metadata elsewhere are rejected.
type TriggerNotification struct {
	PRID           string `json:"pr_id" validate:"required"`
	PRNumber       string `json:"pr_number" validate:"required"`
	OrganizationID string `json:"organization_id" validate:"required"`
	OldStatus      string `json:"old_status" validate:"required"`
	NewStatus      string `json:"new_status" validate:"required"`
	IsUrgent       bool   `json:"is_urgent"`
	RequestorEmail string `json:"requestor_email" validate:"omitempty,email"`
	RequestorName  string `json:"requestor_name,omitempty"`
	ApproverEmail  string `json:"approver_email" validate:"omitempty,email"`
	Notes          string `json:"notes,omitempty"`
}

// TransitionKey returns the deduplication key for this trigger's status pair.
func (n TriggerNotification) TransitionKey() string {
	return TransitionKey(PRStatus(n.OldStatus), PRStatus(n.NewStatus))
}

// TriggerEmailBody optionally carries pre-rendered content. When present it
// bypasses the template renderer but still passes through the post-processor.
type TriggerEmailBody struct {
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// TriggerRequest is the canonical payload of the notification trigger surface.
type TriggerRequest struct {
	Notification TriggerNotification `json:"notification" validate:"required"`
	Recipients   []string            `json:"recipients,omitempty" validate:"dive,email"`
	Cc           []string            `json:"cc,omitempty" validate:"dive,email"`
	EmailBody    *TriggerEmailBody   `json:"email_body,omitempty"`
}

// TriggerResult is returned to the caller of the trigger surface.
type TriggerResult struct {
	Success   bool     `json:"success"`
	Duplicate bool     `json:"duplicate,omitempty"`
	Delivered int      `json:"delivered"`
	Failed    []string `json:"failed,omitempty"`
}
