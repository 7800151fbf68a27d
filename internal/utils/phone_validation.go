package utils

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	twilio "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	lookupsv2 "github.com/twilio/twilio-go/rest/lookups/v2"
)

// Only consulted when phone validation is flagged on.
var phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// NormalizePhone strips surrounding whitespace plus the separators people
// commonly type (spaces, dashes, dots, parentheses).
func NormalizePhone(raw string) string {
	r := strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
	return r.Replace(strings.TrimSpace(raw))
}

// IsPlausiblePhone reports whether number looks like a dialable phone number.
func IsPlausiblePhone(number string) bool {
	return phoneRegex.MatchString(number)
}

// PhoneLookup is the slice of the Twilio client used for remote validation.
type PhoneLookup interface {
	FetchPhoneNumber(phoneNumber string, params *lookupsv2.FetchPhoneNumberParams) (*lookupsv2.LookupsV2PhoneNumber, error)
}

// NewTwilioPhoneLookup returns the Lookups v2 service of a Twilio REST client,
// or nil when credentials are missing.
func NewTwilioPhoneLookup(accountSID, authToken string) PhoneLookup {
	if accountSID == "" || authToken == "" {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return client.LookupsV2
}

// ValidatePhoneNumber accepts any number unless validateWithTwilio is set.
// With the flag on, number must look like a phone number and, when a lookup
// client is available, pass Twilio Lookups v2.
func ValidatePhoneNumber(
	ctx context.Context,
	number string,
	validateWithTwilio bool,
	lookup PhoneLookup,
) (bool, error) {
	if !validateWithTwilio {
		return true, nil
	}
	if !IsPlausiblePhone(number) {
		return false, nil
	}
	if lookup == nil {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	res, err := lookup.FetchPhoneNumber(number, nil)
	if err != nil {
		if restErr, ok := err.(*twilioclient.TwilioRestError); ok {
			if restErr.Status == 404 {
				return false, nil
			}
			return false, fmt.Errorf("%w: twilio lookup failed: %d %s",
				ErrExternalServiceFailure, restErr.Status, restErr.Error())
		}
		return false, fmt.Errorf("%w: twilio lookup failed: %v", ErrExternalServiceFailure, err)
	}
	if res != nil && res.Valid != nil && !*res.Valid {
		return false, nil
	}
	return true, nil
}
