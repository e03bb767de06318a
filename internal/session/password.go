package session

import "unicode/utf8"

// PasswordSymbols are the characters that satisfy the symbol facet.
const PasswordSymbols = "!@#$%^&*"

// PasswordPolicy holds the five strength facets of a candidate password.
type PasswordPolicy struct {
	Length    bool `json:"length"`
	Uppercase bool `json:"uppercase"`
	Lowercase bool `json:"lowercase"`
	Number    bool `json:"number"`
	Symbol    bool `json:"symbol"`
}

// Facet is one labelled policy requirement for display.
type Facet struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Valid bool   `json:"valid"`
}

// EvaluatePassword computes the policy for p. Pure; recompute on every change.
func EvaluatePassword(p string) PasswordPolicy {
	policy := PasswordPolicy{Length: utf8.RuneCountInString(p) >= 8}
	for _, r := range p {
		switch {
		case r >= 'A' && r <= 'Z':
			policy.Uppercase = true
		case r >= 'a' && r <= 'z':
			policy.Lowercase = true
		case r >= '0' && r <= '9':
			policy.Number = true
		case isSymbol(r):
			policy.Symbol = true
		}
	}
	return policy
}

func isSymbol(r rune) bool {
	for _, s := range PasswordSymbols {
		if r == s {
			return true
		}
	}
	return false
}

// AllValid reports whether every facet holds. Registration requires it.
func (p PasswordPolicy) AllValid() bool {
	return p.Length && p.Uppercase && p.Lowercase && p.Number && p.Symbol
}

// Facets lists the facets in display order.
func (p PasswordPolicy) Facets() []Facet {
	return []Facet{
		{Key: "length", Label: "8+ Characters", Valid: p.Length},
		{Key: "uppercase", Label: "1 Uppercase Letter", Valid: p.Uppercase},
		{Key: "lowercase", Label: "1 Lowercase Letter", Valid: p.Lowercase},
		{Key: "number", Label: "1 Number", Valid: p.Number},
		{Key: "symbol", Label: "1 Special Character (!@#$)", Valid: p.Symbol},
	}
}
