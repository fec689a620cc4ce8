package util

import (
	"net/mail"
	"strings"
)

// parseFrom parses an RFC 5322 sender such as "Name <user@example.com>".
// Lists fall back to the first parsable entry.
func parseFrom(from string) *mail.Address {
	from = strings.TrimSpace(from)
	if from == "" {
		return nil
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr
	}
	for _, p := range strings.Split(from, ",") {
		if a, err := mail.ParseAddress(strings.TrimSpace(p)); err == nil {
			return a
		}
	}
	return nil
}

// SenderAddress extracts the lowercased address of a sender, dropping any
// +alias in the local part. It returns "" when nothing parses.
func SenderAddress(from string) string {
	addr := parseFrom(from)
	if addr == nil {
		return ""
	}

	email := strings.ToLower(strings.TrimSpace(addr.Address))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.IndexByte(local, '+'); plus > -1 {
		local = local[:plus]
	}
	// Dots are kept; only some providers ignore them.
	return local + "@" + domain
}

// SenderDisplay is what list rows show for a sender: the display name when
// there is one, else the address, else the raw header.
func SenderDisplay(from string) string {
	addr := parseFrom(from)
	if addr == nil {
		return strings.TrimSpace(from)
	}
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Address
}
