package otp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medcare.org/internal/obs"
)

// Gateway delivers SMS messages. Implementations must not panic when
// unconfigured; send failures are reported, not thrown.
type Gateway interface {
	Send(ctx context.Context, phone, body string) error
}

// Message texts per purpose. 2FA codes expire in 5 minutes, others in 10.
func messageFor(code string, purpose Purpose) string {
	switch purpose {
	case PurposeLogin:
		return fmt.Sprintf("Your MedCare login code is: %s. This code expires in 10 minutes. Do not share this code.", code)
	case Purpose2FA:
		return fmt.Sprintf("Your MedCare 2FA code is: %s. This code expires in 5 minutes. Do not share this code.", code)
	default:
		return fmt.Sprintf("Your MedCare verification code is: %s. This code expires in 10 minutes. Do not share this code.", code)
	}
}

// ExpiryFor returns the code lifetime for a purpose.
func ExpiryFor(purpose Purpose) time.Duration {
	if purpose == Purpose2FA {
		return 5 * time.Minute
	}
	return 10 * time.Minute
}

// TwilioGateway posts to the Twilio Messages REST endpoint.
type TwilioGateway struct {
	accountSID string
	authToken  string
	from       string
	client     *http.Client
	baseURL    string
}

func NewTwilioGateway(accountSID, authToken, from string) *TwilioGateway {
	return &TwilioGateway{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.twilio.com",
	}
}

// WithBaseURL points the gateway at a test server.
func (g *TwilioGateway) WithBaseURL(base string) *TwilioGateway {
	g.baseURL = strings.TrimRight(base, "/")
	return g
}

func (g *TwilioGateway) Send(ctx context.Context, phone, body string) error {
	form := url.Values{}
	form.Set("To", FormatPhone(phone))
	form.Set("From", g.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.baseURL, g.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.accountSID, g.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway: status %d", resp.StatusCode)
	}
	return nil
}

// DisabledGateway stands in when SMS credentials are absent. Sends fail with
// an error rather than panicking, and the condition is logged once per send.
type DisabledGateway struct{}

func (DisabledGateway) Send(ctx context.Context, phone, body string) error {
	obs.Warn("sms disabled: credentials not configured", map[string]any{
		"phone": MaskPhone(phone),
	})
	return fmt.Errorf("sms gateway not configured")
}
