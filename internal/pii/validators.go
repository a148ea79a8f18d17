package pii

import (
	"strconv"
	"strings"
	"unicode"
)

// digitsOf strips every non-digit rune from s.
func digitsOf(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// ValidateLuhn reports whether the digits of value pass the Luhn
// checksum: doubling every second digit from the right, reducing
// two-digit results by 9, and requiring the sum to be a multiple of 10.
func ValidateLuhn(value string) bool {
	number := digitsOf(value)
	if len(number) < 13 || len(number) > 19 {
		return false
	}

	sum := 0
	alternate := false
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if alternate {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		alternate = !alternate
	}
	return sum%10 == 0
}

// ValidateIPv4 range-checks each dot-separated octet in 0-255.
func ValidateIPv4(value string) bool {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		num, err := strconv.Atoi(part)
		if err != nil || num < 0 || num > 255 {
			return false
		}
		// Reject leading zeros like 01; they are ambiguous octal forms.
		if len(part) > 1 && part[0] == '0' {
			return false
		}
	}
	return true
}

// ValidateSSN rejects the area/group/serial values the SSA never issues:
// area 000, 666 or 900-999, group 00, serial 0000.
func ValidateSSN(value string) bool {
	clean := digitsOf(value)
	if len(clean) != 9 {
		return false
	}

	area, _ := strconv.Atoi(clean[0:3])
	group, _ := strconv.Atoi(clean[3:5])
	serial, _ := strconv.Atoi(clean[5:9])

	if area == 0 || area == 666 || area >= 900 {
		return false
	}
	return group != 0 && serial != 0
}

// ValidateEmail applies structural checks beyond the recognizer:
// a single late @, a dotted domain and a TLD of at least two letters.
func ValidateEmail(value string) bool {
	atIndex := strings.LastIndex(value, "@")
	if atIndex < 1 || atIndex >= len(value)-4 {
		return false
	}

	domain := value[atIndex+1:]
	lastDot := strings.LastIndex(domain, ".")
	if lastDot < 0 || len(domain)-lastDot-1 < 2 {
		return false
	}
	return !strings.Contains(value, "..") && !strings.HasPrefix(domain, ".")
}

// ValidatePhone requires a plausible digit count and rejects runs of a
// single repeated digit.
func ValidatePhone(value string) bool {
	digits := digitsOf(value)
	if len(digits) < 7 || len(digits) > 15 {
		return false
	}
	first := digits[0]
	for i := 1; i < len(digits); i++ {
		if digits[i] != first {
			return true
		}
	}
	return false
}

// ValidateIBAN checks the ISO 13616 MOD-97 checksum: the first four
// characters are moved to the end, letters become two-digit numbers
// (A=10..Z=35) and the resulting integer must leave remainder 1 mod 97.
func ValidateIBAN(value string) bool {
	clean := strings.ReplaceAll(strings.ToUpper(value), " ", "")
	if len(clean) < 15 || len(clean) > 34 {
		return false
	}
	if !unicode.IsLetter(rune(clean[0])) || !unicode.IsLetter(rune(clean[1])) {
		return false
	}

	rearranged := clean[4:] + clean[0:4]
	remainder := 0
	for _, ch := range rearranged {
		switch {
		case unicode.IsDigit(ch):
			remainder = (remainder*10 + int(ch-'0')) % 97
		case unicode.IsLetter(ch):
			n := int(ch-'A') + 10
			remainder = (remainder*100 + n) % 97
		default:
			return false
		}
	}
	return remainder == 1
}
