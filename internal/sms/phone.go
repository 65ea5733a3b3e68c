package sms

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidPhoneNumber is returned when a phone number cannot be parsed or validated.
var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// NormalizePhone parses input and returns it in E.164 form. Numbers without a
// leading '+' are interpreted in defaultRegion (ISO 3166-1 alpha-2); with an
// empty defaultRegion they are rejected.
func NormalizePhone(input, defaultRegion string) (string, error) {
	input = strings.TrimSpace(input)
	plusCount := 0
	digits := 0
	for _, r := range input {
		switch {
		case r == '+':
			plusCount++
		case r >= '0' && r <= '9':
			digits++
		case r == ' ', r == '-', r == '(', r == ')', r == '.':
		default:
			return "", ErrInvalidPhoneNumber
		}
	}
	if plusCount > 1 || digits == 0 {
		return "", ErrInvalidPhoneNumber
	}
	if plusCount == 1 && !strings.HasPrefix(input, "+") {
		return "", ErrInvalidPhoneNumber
	}
	region := ""
	if plusCount == 0 {
		if defaultRegion == "" {
			return "", ErrInvalidPhoneNumber
		}
		region = strings.ToUpper(defaultRegion)
	}

	num, err := phonenumbers.Parse(input, region)
	if err != nil {
		return "", ErrInvalidPhoneNumber
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhoneNumber
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// PhoneCountry returns the ISO 3166-1 alpha-2 region of an E.164 number, or
// "" if it cannot be parsed.
func PhoneCountry(phone string) string {
	num, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return ""
	}
	return phonenumbers.GetRegionCodeForNumber(num)
}

// IsAllowedCountry reports whether phone belongs to one of the allowed
// regions. An empty list permits all.
func IsAllowedCountry(phone string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	region := PhoneCountry(phone)
	if region == "" {
		return false
	}
	for _, code := range allowed {
		if strings.EqualFold(code, region) {
			return true
		}
	}
	return false
}
