package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var cellRefRe = regexp.MustCompile(`^\$?([A-Za-z]{1,3})\$?([0-9]+)$`)

// ParseCellRef splits an A1-style reference into column letters and row
// number. Absolute markers ($) are tolerated and dropped.
func ParseCellRef(ref string) (string, int, error) {
	match := cellRefRe.FindStringSubmatch(strings.TrimSpace(ref))
	if match == nil {
		return "", 0, fmt.Errorf("invalid cell reference: %q", ref)
	}
	row, err := strconv.Atoi(match[2])
	if err != nil || row < 1 {
		return "", 0, fmt.Errorf("invalid row in cell reference: %q", ref)
	}
	return strings.ToUpper(match[1]), row, nil
}

// ColumnToIndex converts column letters to a 1-based index (A=1, Z=26,
// AA=27). The scheme is base-26 without a zero digit.
func ColumnToIndex(col string) int {
	index := 0
	for _, r := range strings.ToUpper(col) {
		if r < 'A' || r > 'Z' {
			return 0
		}
		index = index*26 + int(r-'A'+1)
	}
	return index
}

// IndexToColumn converts a 1-based index back to column letters.
func IndexToColumn(index int) string {
	if index < 1 {
		return ""
	}
	var letters []byte
	for index > 0 {
		index--
		letters = append([]byte{byte('A' + index%26)}, letters...)
		index /= 26
	}
	return string(letters)
}

// HeaderRange computes the single-row range spanning n columns starting at
// startCell, e.g. ("B2", 3) → "B2:D2".
func HeaderRange(startCell string, n int) (string, error) {
	col, row, err := ParseCellRef(startCell)
	if err != nil {
		return "", err
	}
	if n < 1 {
		return "", fmt.Errorf("header range needs at least one column, got %d", n)
	}
	endCol := IndexToColumn(ColumnToIndex(col) + n - 1)
	return fmt.Sprintf("%s%d:%s%d", col, row, endCol, row), nil
}
