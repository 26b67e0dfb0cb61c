package mpesa

import (
	"errors"
	"strings"
)

const countryCode = "254"

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone turns 07XXXXXXXX, +2547XXXXXXXX, 7XXXXXXXX and 2547XXXXXXXX
// into the 2547XXXXXXXX form expected by Daraja.
func NormalizePhone(phone string) (string, error) {
	p := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))

	p = strings.TrimPrefix(p, "+")
	p = strings.TrimPrefix(p, "0")
	if !strings.HasPrefix(p, countryCode) {
		p = countryCode + p
	}

	if len(p) != 12 {
		return "", ErrInvalidPhone
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}
	return p, nil
}
