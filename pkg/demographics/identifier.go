package demographics

import (
	"strings"

	"github.com/pds-match-service/internal/domain"
)

// IdentifierLength is the number of digits in a national patient identifier.
const IdentifierLength = 10

// NormalizeIdentifier removes spaces from an identifier ("943 476 5919" -> "9434765919").
func NormalizeIdentifier(identifier string) string {
	return strings.ReplaceAll(strings.TrimSpace(identifier), " ", "")
}

// ValidateIdentifier checks the shape of a national patient identifier: ten digits whose last
// digit is the modulus 11 check digit of the first nine.
func ValidateIdentifier(identifier string) error {
	id := NormalizeIdentifier(identifier)
	if id == "" {
		return domain.NewValidationError("identifier", "Identifier is required", identifier)
	}

	if len(id) != IdentifierLength {
		return domain.NewValidationError("identifier", "Identifier must have 10 digits", identifier)
	}

	sum := 0
	for i, r := range id {
		if r < '0' || r > '9' {
			return domain.NewValidationError("identifier", "Identifier must be numeric", identifier)
		}
		if i < IdentifierLength-1 {
			sum += int(r-'0') * (IdentifierLength - i)
		}
	}

	check := 11 - sum%11
	if check == 11 {
		check = 0
	}
	if check == 10 || check != int(id[IdentifierLength-1]-'0') {
		return domain.NewValidationError("identifier", "Identifier check digit is invalid", identifier)
	}

	return nil
}
