package classify

import "strings"

const (
	shortNameMaxWords = 3
	shortNameMaxLen   = 25
)

// fillerWords are stripped before abbreviating: leading course-type labels
// and Portuguese connectives that carry no meaning in a short name.
var fillerWords = map[string]bool{
	"curso": true, "técnico": true, "tecnico": true, "em": true,
	"de": true, "da": true, "do": true, "das": true, "dos": true,
	"e": true, "a": true, "o": true, "para": true,
}

// ShortName derives a deterministic abbreviation from a course name:
// filler words are dropped, the first significant words are kept and the
// result is truncated to a fixed maximum length.
func ShortName(name string) string {
	var significant []string
	for _, w := range strings.Fields(name) {
		if fillerWords[strings.ToLower(w)] {
			continue
		}
		significant = append(significant, w)
		if len(significant) == shortNameMaxWords {
			break
		}
	}
	if len(significant) == 0 {
		significant = strings.Fields(name)
		if len(significant) > shortNameMaxWords {
			significant = significant[:shortNameMaxWords]
		}
	}

	short := strings.Join(significant, " ")
	if runes := []rune(short); len(runes) > shortNameMaxLen {
		short = strings.TrimSpace(string(runes[:shortNameMaxLen]))
	}
	return short
}
