package adminrpc

// HealthRequest carries no fields; present for symmetry with the rest
// of the admin surface and forward compatibility.
type HealthRequest struct{}

// HealthResponse reports whether the daemon considers itself healthy.
type HealthResponse struct {
	Healthy      bool   `json:"healthy"`
	DemobankName string `json:"demobank_name"`
}

// TriggerDrainRequest asks the cash-out monitor for one account label
// to run an immediate drain pass instead of waiting for its next poll
// or notification.
type TriggerDrainRequest struct {
	AccountLabel string `json:"account_label"`
}

// TriggerDrainResponse reports how many fresh credits were submitted.
type TriggerDrainResponse struct {
	SubmittedCount int32 `json:"submitted_count"`
}

// DescribeSubscriberRequest identifies one EBICS subscriber.
type DescribeSubscriberRequest struct {
	HostID    string `json:"host_id"`
	PartnerID string `json:"partner_id"`
	UserID    string `json:"user_id"`
}

// DescribeSubscriberResponse reports a subscriber's key lifecycle
// state and bound bank account, for operator diagnosis.
type DescribeSubscriberResponse struct {
	State         string `json:"state"`
	BankAccountID int64  `json:"bank_account_id"`
	HasIniLetter  bool   `json:"has_ini_letter"`
	HasHiaLetter  bool   `json:"has_hia_letter"`
}
