// Package pharmacy defines the Pharmacy domain entity.
package pharmacy

import "time"

// Pharmacy is a dispensing location identified by its National Provider
// Identifier.
type Pharmacy struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NPI       string    `json:"npi"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidNPI reports whether npi is a 10-digit National Provider Identifier
// with a valid Luhn check digit. The check digit is computed over the
// "80840" card-issuer prefix followed by the first nine digits.
func ValidNPI(npi string) bool {
	if len(npi) != 10 {
		return false
	}
	for _, c := range npi {
		if c < '0' || c > '9' {
			return false
		}
	}

	// 80840 prefix contributes a constant 24 to the Luhn sum.
	sum := 24
	double := true
	for i := 8; i >= 0; i-- {
		d := int(npi[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	check := (10 - sum%10) % 10
	return check == int(npi[9]-'0')
}
