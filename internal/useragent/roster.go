// Package useragent implements the user client of spec.md §4.4: one
// ride-request lifecycle per roster entry, with a single retry against the
// backup dispatcher on timeout. Grounded on
// original_source/src/services/user_service.py's UserThread/UserService,
// restructured per spec.md §9 ("Unbounded thread fan-out") into a bounded
// set of goroutines joined with a WaitGroup rather than one unmanaged
// thread per user.
package useragent

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Request is one roster entry: a user that will submit exactly one ride
// request after waiting WaitTime seconds (spec.md §3, "User Request").
type Request struct {
	UserID   int
	X, Y     int
	WaitTime int
}

// LoadRoster reads the CSV-like roster file spec.md §6.1 describes: lines
// "id x y waiting_time", whitespace or comma separated, all integers.
func LoadRoster(path string) ([]Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("useragent: open roster %s: %w", path, err)
	}
	defer f.Close()

	var requests []Request
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) != 4 {
			return nil, fmt.Errorf("useragent: roster %s line %d: expected 4 fields, got %d", path, lineNo, len(fields))
		}
		id, err1 := strconv.Atoi(fields[0])
		x, err2 := strconv.Atoi(fields[1])
		y, err3 := strconv.Atoi(fields[2])
		wait, err4 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, fmt.Errorf("useragent: roster %s line %d: non-integer field", path, lineNo)
		}
		requests = append(requests, Request{UserID: id, X: x, Y: y, WaitTime: wait})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("useragent: scan roster %s: %w", path, err)
	}
	return requests, nil
}
