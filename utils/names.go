package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeName collapses whitespace and title-cases a person's name.
func NormalizeName(name string) string {
	return cases.Title(language.Indonesian).String(strings.Join(strings.Fields(name), " "))
}
