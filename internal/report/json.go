package report

import (
	"encoding/json"
	"io"
)

// WriteJSON writes r indented by two spaces. Pending rows omit correctAnswer.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}
