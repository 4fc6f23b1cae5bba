package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/uptimeworker/internal/config"
)

const (
	minSMSPhoneLength = 10
	maxSMSLength      = 1600
)

// ErrInvalidSMS is returned before any request is made when the alert cannot
// be delivered as an SMS.
var ErrInvalidSMS = errors.New("given parameters were missing or invalid")

// GatewayError is the JSON error body returned by the SMS gateway.
type GatewayError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	MoreInfo   string `json:"more_info"`
	Status     int    `json:"status"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("sms gateway %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
}

type Twilio struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	Client     *http.Client
}

// NewTwilio returns nil when credentials are missing so callers can leave SMS
// out of the notifier set.
func NewTwilio(cfg config.Twilio) *Twilio {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromPhone == "" {
		return nil
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.twilio.com"
	}
	return &Twilio{
		AccountSID: cfg.AccountSID,
		AuthToken:  cfg.AuthToken,
		From:       cfg.FromPhone,
		BaseURL:    strings.TrimRight(base, "/"),
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func validSMS(a Alert) bool {
	phone := strings.TrimSpace(a.Phone)
	msg := strings.TrimSpace(a.Message)
	return len(phone) >= minSMSPhoneLength &&
		strings.TrimSpace(a.CountryCode) != "" &&
		len(msg) > 0 && len(msg) < maxSMSLength
}

func (t *Twilio) Notify(ctx context.Context, a Alert) error {
	if !validSMS(a) {
		return ErrInvalidSMS
	}
	if t == nil {
		return errors.New("sms disabled")
	}

	form := url.Values{}
	form.Set("From", t.From)
	form.Set("To", "+"+strings.TrimSpace(a.CountryCode)+strings.TrimSpace(a.Phone))
	form.Set("Body", strings.TrimSpace(a.Message))

	endpoint := t.BaseURL + "/2010-04-01/Accounts/" + url.PathEscape(t.AccountSID) + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.AccountSID, t.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	gerr := &GatewayError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, gerr); err != nil {
		gerr.Message = strings.TrimSpace(string(body))
	}
	return gerr
}
