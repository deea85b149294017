package output

import (
	"encoding/json"
	"os"
)

// JSONPrinter prints machine-readable output.
type JSONPrinter struct{}

// Print renders indented JSON.
func (JSONPrinter) Print(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
