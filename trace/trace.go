// Package trace replays memory access traces against a cache model.
//
// A trace is a text file with one access per line: an "R" or "W" operation
// followed by a hexadecimal address. Blank lines and lines starting with "#"
// are ignored.
//
//	# warm-up
//	R 0x00401A3C
//	W 0x00401A40
package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Op is the kind of one traced access.
type Op string

// The two trace operations.
const (
	OpRead  Op = "R"
	OpWrite Op = "W"
)

// An Access is one entry of a trace.
type Access struct {
	Op      Op
	Address uint64
}

// Parse reads a whole trace. Malformed lines fail with their line number.
func Parse(r io.Reader) ([]Access, error) {
	var accesses []Access

	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		access, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		accesses = append(accesses, access)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return accesses, nil
}

func parseLine(line string) (Access, error) {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return Access{}, fmt.Errorf(
			"expected \"<op> <address>\", got %q", line)
	}

	var op Op
	switch strings.ToUpper(parts[0]) {
	case "R":
		op = OpRead
	case "W":
		op = OpWrite
	default:
		return Access{}, fmt.Errorf("unknown operation %q", parts[0])
	}

	addrStr := strings.TrimPrefix(strings.ToLower(parts[1]), "0x")
	addr, err := strconv.ParseUint(addrStr, 16, 64)
	if err != nil {
		return Access{}, fmt.Errorf("bad address %q: %w", parts[1], err)
	}

	return Access{Op: op, Address: addr}, nil
}
