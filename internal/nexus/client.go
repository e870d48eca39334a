// Package nexus is a thin client for the external fiat payment
// connector the cash-out monitor (C8) submits converted payments to.
// Nexus itself is an out-of-process collaborator (spec.md §1: "Out of
// scope (external collaborators)") — this package only knows how to
// shape and POST one request.
package nexus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client submits payment-initiation requests to a Nexus instance over
// HTTP basic auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient constructs a Client. A nil httpClient defaults to one with
// a 10s timeout, matching the rest of this daemon's outbound calls.
func NewClient(baseURL, username, password string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, username: username, password: password, httpClient: httpClient}
}

// PaymentInitiation is the body POSTed for one cash-out submission
// (spec.md §4.8).
type PaymentInitiation struct {
	UID     string `json:"uid"`
	IBAN    string `json:"iban"`
	BIC     string `json:"bic"`
	Amount  string `json:"amount"`
	Subject string `json:"subject"`
	Name    string `json:"name"`
}

// SubmitResult carries the HTTP outcome the monitor needs to decide
// between recording isSubmitted or hasErrors.
type SubmitResult struct {
	StatusCode int
	Body       string
}

// Success reports whether the Nexus response was in the 2xx range.
func (r SubmitResult) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// SubmitPaymentInitiation POSTs to
// <baseURL>/bank-accounts/<usernameAtNexus>/payment-initiations. A
// non-nil error means the request never reached Nexus (transport
// failure); a non-2xx response is returned as a SubmitResult, not an
// error, so the caller can record hasErrors without losing the
// response body.
func (c *Client) SubmitPaymentInitiation(ctx context.Context, usernameAtNexus string, p PaymentInitiation) (SubmitResult, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("nexus: encode payment-initiation: %w", err)
	}

	url := fmt.Sprintf("%s/bank-accounts/%s/payment-initiations", c.baseURL, usernameAtNexus)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("nexus: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("nexus: submit payment-initiation: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("nexus: read response: %w", err)
	}

	return SubmitResult{StatusCode: resp.StatusCode, Body: string(respBody)}, nil
}
