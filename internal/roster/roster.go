// Package roster normalizes and deduplicates the person records collected
// from the remote source before they reach reconciliation.
package roster

import (
	"strings"
	"unicode"

	"polosync/internal/moodle"
)

const cpfLength = 11

// NormalizeCPF strips everything but digits from a raw national-id string
// and reports whether the result is a well-formed 11-digit CPF.
// "031.839.245-36" normalizes to "03183924536"; "123" is rejected.
func NormalizeCPF(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) != cpfLength {
		return "", false
	}
	return digits, true
}

// Dedup collapses raw person records to at most one per normalized CPF,
// keeping the first-seen occurrence verbatim. Records whose id does not
// normalize are dropped silently and counted, never errored. The output
// preserves input order; the function has no side effects.
func Dedup(people []moodle.EnrolledUser) (unique []moodle.EnrolledUser, skipped int) {
	seen := make(map[string]bool, len(people))
	for _, p := range people {
		cpf, ok := NormalizeCPF(p.IDNumber)
		if !ok {
			skipped++
			continue
		}
		if seen[cpf] {
			continue
		}
		seen[cpf] = true
		unique = append(unique, p)
	}
	return unique, skipped
}
