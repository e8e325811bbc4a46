package totp

import (
	"net/url"
	"strconv"
	"strings"
)

// ProvisioningURI builds the otpauth:// URI authenticator apps scan from a QR code.
func ProvisioningURI(secret, account, issuer string) string {
	label := account
	if issuer != "" {
		label = issuer + ":" + account
	}

	v := url.Values{}
	v.Set("secret", strings.TrimRight(secret, "="))
	if issuer != "" {
		v.Set("issuer", issuer)
	}
	v.Set("algorithm", "SHA1")
	v.Set("digits", strconv.Itoa(Digits))
	v.Set("period", strconv.Itoa(int(Period.Seconds())))

	return "otpauth://totp/" + url.PathEscape(label) + "?" + v.Encode()
}

// ManualEntryKey formats a secret for typing: padding removed, groups of four.
func ManualEntryKey(secret string) string {
	s := strings.TrimRight(strings.ToUpper(secret), "=")
	var b strings.Builder
	for i := 0; i < len(s); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := i + 4
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}

// MaskSecret keeps the first and last four characters of a secret.
func MaskSecret(secret string) string {
	s := strings.TrimRight(secret, "=")
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
