// Package telephony adapts the dialogue engine to Twilio voice calls:
// TwiML responses, webhook signature checks and number lookup.
package telephony

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// ErrNotConfigured is returned when Twilio credentials are missing.
var ErrNotConfigured = errors.New("twilio credentials not configured")

// VoiceOptions control how replies are spoken and how long Twilio listens.
type VoiceOptions struct {
	Voice         string
	Language      string
	GatherTimeout int
	SpeechTimeout string
}

// ListenResponse speaks text, then gathers the caller's next utterance and
// posts it to action. If the caller says nothing, Twilio falls through to
// the redirect, which posts to action without a SpeechResult.
func ListenResponse(text, action string, opts VoiceOptions) (string, error) {
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        action,
		Method:        "POST",
		Language:      opts.Language,
		SpeechTimeout: opts.SpeechTimeout,
		InnerElements: []twiml.Element{say(text, opts)},
	}
	if opts.GatherTimeout > 0 {
		gather.Timeout = strconv.Itoa(opts.GatherTimeout)
	}
	return twiml.Voice([]twiml.Element{
		gather,
		&twiml.VoiceRedirect{Url: action, Method: "POST"},
	})
}

// HangupResponse speaks text and ends the call.
func HangupResponse(text string, opts VoiceOptions) (string, error) {
	return twiml.Voice([]twiml.Element{
		say(text, opts),
		&twiml.VoiceHangup{},
	})
}

func say(text string, opts VoiceOptions) *twiml.VoiceSay {
	return &twiml.VoiceSay{
		Message:  text,
		Voice:    opts.Voice,
		Language: opts.Language,
	}
}

// SignatureValidator checks the X-Twilio-Signature header of webhooks.
type SignatureValidator struct {
	v client.RequestValidator
}

// NewSignatureValidator creates a validator. It returns nil when authToken
// is empty, which disables validation.
func NewSignatureValidator(authToken string) *SignatureValidator {
	if authToken == "" {
		return nil
	}
	return &SignatureValidator{v: client.NewRequestValidator(authToken)}
}

// Valid reports whether signature matches the full webhook URL and its
// form parameters. A nil validator accepts everything.
func (s *SignatureValidator) Valid(url string, params map[string]string, signature string) bool {
	if s == nil {
		return true
	}
	return s.v.Validate(url, params, signature)
}

// PhoneNumber is an incoming number on the Twilio account.
type PhoneNumber struct {
	SID          string `json:"sid"`
	Number       string `json:"phoneNumber"`
	FriendlyName string `json:"friendlyName"`
}

type numberAPI interface {
	ListIncomingPhoneNumber(params *openapi.ListIncomingPhoneNumberParams) ([]openapi.ApiV2010IncomingPhoneNumber, error)
}

// Client reads account data from the Twilio REST API.
type Client struct {
	api numberAPI
}

// NewClient creates a REST client for the account.
func NewClient(accountSID, authToken string) (*Client, error) {
	if accountSID == "" || authToken == "" {
		return nil, ErrNotConfigured
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Client{api: rc.Api}, nil
}

// ListNumbers returns up to limit incoming numbers, for choosing the AI
// number during setup.
func (c *Client) ListNumbers(limit int) ([]PhoneNumber, error) {
	if limit <= 0 {
		limit = 20
	}
	params := &openapi.ListIncomingPhoneNumberParams{}
	params.SetLimit(limit)

	resp, err := c.api.ListIncomingPhoneNumber(params)
	if err != nil {
		return nil, fmt.Errorf("list twilio numbers: %w", err)
	}
	out := make([]PhoneNumber, 0, len(resp))
	for _, n := range resp {
		out = append(out, PhoneNumber{
			SID:          deref(n.Sid),
			Number:       deref(n.PhoneNumber),
			FriendlyName: deref(n.FriendlyName),
		})
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
