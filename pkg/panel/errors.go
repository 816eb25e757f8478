package panel

import (
	"fmt"
	"strings"
)

// SchemaError is returned when a dataset lacks required columns.
type SchemaError struct {
	Dataset string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("dataset %q is missing required columns: %s", e.Dataset, strings.Join(e.Missing, ", "))
}
