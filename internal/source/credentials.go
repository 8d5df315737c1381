package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danamir/banksync/internal/errs"
)

// requiredFields maps a source name (lowercased) to the credential fields it
// needs. Credential shapes differ per institution; validation is a table
// lookup, not per-source branching.
var requiredFields = map[string][]string{
	"hapoalim":         {"userCode", "password"},
	"leumi":            {"username", "password"},
	"discount":         {"id", "password", "num"},
	"mercantile":       {"id", "password", "num"},
	"mizrahi":          {"username", "password"},
	"otsarhahayal":     {"username", "password"},
	"union":            {"username", "password"},
	"beinleumi":        {"username", "password"},
	"massad":           {"username", "password"},
	"yahav":            {"username", "password", "nationalID"},
	"visacal":          {"username", "password"},
	"max":              {"username", "password"},
	"isracard":         {"id", "card6Digits", "password"},
	"amex":             {"id", "card6Digits", "password"},
	"beyahadbishvilha": {"id", "password"},
	"behatsdaa":        {"id", "password"},
	"pagi":             {"username", "password"},
	"onezero":          {"email", "password", "phoneNumber"},
}

// CanonicalizeCredentials restores the exact field-name casing the scraper
// expects. Config loaders tend to lowercase map keys, which would turn
// userCode into usercode and break both validation and the fetch payload.
// Unknown sources and unknown fields pass through untouched.
func CanonicalizeCredentials(name string, creds Credentials) Credentials {
	fields, ok := requiredFields[strings.ToLower(name)]
	if !ok || len(creds) == 0 {
		return creds
	}

	canonical := make(map[string]string, len(fields))
	for _, f := range fields {
		canonical[strings.ToLower(f)] = f
	}

	out := make(Credentials, len(creds))
	for k, v := range creds {
		if c, ok := canonical[strings.ToLower(k)]; ok {
			out[c] = v
		} else {
			out[k] = v
		}
	}
	return out
}

// KnownSource reports whether name is a supported source. Matching is
// case-insensitive.
func KnownSource(name string) bool {
	_, ok := requiredFields[strings.ToLower(name)]
	return ok
}

// ValidateCredentials checks that creds carries every field the named source
// requires, with non-empty values.
func ValidateCredentials(name string, creds Credentials) error {
	fields, ok := requiredFields[strings.ToLower(name)]
	if !ok {
		return &errs.ConfigError{Message: fmt.Sprintf("unknown source: %s", name)}
	}

	var missing []string
	for _, f := range fields {
		if creds[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &errs.ConfigError{
			Message: fmt.Sprintf("source %s is missing credential fields: %s", name, strings.Join(missing, ", ")),
		}
	}
	return nil
}
