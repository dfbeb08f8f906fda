package dataset

import (
	"fmt"
	"strings"
)

// ValidationError describes a header that does not satisfy a stage's
// column requirements.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required column: %s", strings.Join(e.Missing, ", "))
}

// HeaderIndex maps lowercased column names to their header position.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a case-insensitive index over a header row.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		idx[strings.ToLower(CleanCell(h))] = i
	}
	return idx
}

// ValidateHeaders returns a *ValidationError listing every required column
// that is not in header. Matching is case-insensitive.
func ValidateHeaders(header, required []string) error {
	if len(required) == 0 {
		return nil
	}

	idx := MakeHeaderIndex(header)
	var missing []string
	for _, col := range required {
		if _, ok := idx[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// CleanCell removes spreadsheet artifacts from a header cell:
// surrounding whitespace, an Excel formula prefix (="..."), and wrapping quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}
