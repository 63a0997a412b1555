package sheets

import (
	"fmt"
	"strings"
)

// findKeyRow returns the 1-based sheet row holding key and its value.
// The first matching row wins; rows with an empty key cell are skipped.
func findKeyRow(values [][]any, key string) (row int, value string, ok bool) {
	for i, r := range values {
		if len(r) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(r[0])) != key {
			continue
		}
		if len(r) > 1 {
			value = fmt.Sprint(r[1])
		}
		return i + 1, value, true
	}
	return 0, "", false
}

// rowRange is the A1 range covering the key and value cells of one row.
func rowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:B%d", sheet, row, row)
}
