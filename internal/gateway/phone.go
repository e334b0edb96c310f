package gateway

import "strings"

// E164 normalizes a stored phone number for the provider APIs: strip
// everything but digits, then prefix the country calling code.
func E164(phoneNumber, countryCode string) string {
	if countryCode == "" {
		countryCode = "1"
	}

	var digits strings.Builder
	for _, r := range phoneNumber {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	return "+" + countryCode + digits.String()
}
