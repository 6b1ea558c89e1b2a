package classes

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"
)

// Class is one entry of the class table.
type Class struct {
	ID    int
	Name  string
	Color color.RGBA
}

// expectedColumns is id, name, color.
const expectedColumns = 3

// ParseTable reads a tab-separated class table:
//
//	id<TAB>name<TAB>r,g,b
//
// The first line is a header and is ignored. Blank lines are skipped.
// Ids and names must be unique. The returned classes keep file order.
func ParseTable(r io.Reader) ([]Class, error) {
	scanner := bufio.NewScanner(r)
	var out []Class
	seenID := make(map[int]int)
	seenName := make(map[string]int)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) != expectedColumns {
			return nil, fmt.Errorf("line %d: expected %d tab-separated columns, got %d", lineNo, expectedColumns, len(cols))
		}

		id, err := strconv.Atoi(strings.TrimSpace(cols[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: class id %q is not an integer", lineNo, cols[0])
		}
		if id < 0 {
			return nil, fmt.Errorf("line %d: class id %d must not be negative", lineNo, id)
		}

		name := strings.TrimSpace(cols[1])
		if name == "" {
			return nil, fmt.Errorf("line %d: empty class name", lineNo)
		}

		rgba, err := parseColor(cols[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if prev, dup := seenID[id]; dup {
			return nil, fmt.Errorf("line %d: class id %d already defined on line %d", lineNo, id, prev)
		}
		if prev, dup := seenName[name]; dup {
			return nil, fmt.Errorf("line %d: class name %q already defined on line %d", lineNo, name, prev)
		}
		seenID[id] = lineNo
		seenName[name] = lineNo

		out = append(out, Class{ID: id, Name: name, Color: rgba})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading class table: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("class table has no entries")
	}
	return out, nil
}

func parseColor(s string) (color.RGBA, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return color.RGBA{}, fmt.Errorf("color %q must be r,g,b", s)
	}
	var rgb [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("color component %q must be 0-255", p)
		}
		rgb[i] = uint8(v)
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xff}, nil
}

// FormatColor renders a color the way the class table stores it.
func FormatColor(c color.RGBA) string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}
