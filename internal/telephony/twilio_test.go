package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"testing"

	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

func TestListenResponse(t *testing.T) {
	xml, err := ListenResponse("What would you like?", "https://voice.example.com/v1/twilio/transcribe", VoiceOptions{
		Voice:         "alice",
		Language:      "en-US",
		GatherTimeout: 5,
		SpeechTimeout: "auto",
	})
	if err != nil {
		t.Fatalf("ListenResponse() error = %v", err)
	}

	for _, want := range []string{
		"<Response>",
		"<Gather",
		`input="speech"`,
		`timeout="5"`,
		"What would you like?",
		"<Redirect",
		"https://voice.example.com/v1/twilio/transcribe",
	} {
		if !strings.Contains(xml, want) {
			t.Errorf("expected %q in %s", want, xml)
		}
	}
	if strings.Index(xml, "<Gather") > strings.Index(xml, "<Redirect") {
		t.Error("redirect must follow gather")
	}
}

func TestHangupResponse(t *testing.T) {
	xml, err := HangupResponse("Thank you, goodbye.", VoiceOptions{Voice: "alice"})
	if err != nil {
		t.Fatalf("HangupResponse() error = %v", err)
	}
	if !strings.Contains(xml, "Thank you, goodbye.") || !strings.Contains(xml, "<Hangup") {
		t.Errorf("unexpected twiml %s", xml)
	}
	if strings.Contains(xml, "<Gather") {
		t.Error("hangup response must not gather")
	}
}

// sign computes the X-Twilio-Signature value for a form POST.
func sign(token, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(url)
	for _, k := range keys {
		b.WriteString(k + params[k])
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureValidator(t *testing.T) {
	url := "https://voice.example.com/v1/twilio/voice"
	params := map[string]string{"CallSid": "CA1", "To": "+15550001111"}
	good := sign("token", url, params)

	v := NewSignatureValidator("token")
	if !v.Valid(url, params, good) {
		t.Error("expected valid signature")
	}
	if v.Valid(url, params, sign("other", url, params)) {
		t.Error("expected signature from another token to fail")
	}
	if v.Valid(url, map[string]string{"CallSid": "CA2"}, good) {
		t.Error("expected tampered params to fail")
	}

	var disabled *SignatureValidator = NewSignatureValidator("")
	if disabled != nil || !disabled.Valid(url, params, "") {
		t.Error("empty token should disable validation")
	}
}

type fakeNumbers struct {
	limit *int
	resp  []openapi.ApiV2010IncomingPhoneNumber
	err   error
}

func (f *fakeNumbers) ListIncomingPhoneNumber(p *openapi.ListIncomingPhoneNumberParams) ([]openapi.ApiV2010IncomingPhoneNumber, error) {
	f.limit = p.Limit
	return f.resp, f.err
}

func TestListNumbers(t *testing.T) {
	sid, number := "PN1", "+15550001111"
	fake := &fakeNumbers{resp: []openapi.ApiV2010IncomingPhoneNumber{{Sid: &sid, PhoneNumber: &number}}}
	c := &Client{api: fake}

	got, err := c.ListNumbers(0)
	if err != nil {
		t.Fatalf("ListNumbers() error = %v", err)
	}
	if len(got) != 1 || got[0].SID != "PN1" || got[0].Number != number || got[0].FriendlyName != "" {
		t.Errorf("unexpected numbers %+v", got)
	}
	if fake.limit == nil || *fake.limit != 20 {
		t.Errorf("expected default limit 20, got %v", fake.limit)
	}

	fake.err = errors.New("401")
	if _, err := c.ListNumbers(5); err == nil {
		t.Error("expected error")
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient("", "token"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewClient("AC1", "token"); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
