package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Entry is one raw input record: a host identifier string and its
// JSON-encoded agent rule blob, both unvalidated.
type Entry struct {
	Host  string
	Rules string
}

// ParseEntries reads the tabular input: one record per line, two
// comma-delimited quoted fields. Blank lines are skipped. A record with any
// other field count fails the whole parse. No semantic validation happens
// here.
func ParseEntries(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var entries []Entry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		if len(record) != 2 {
			return nil, fmt.Errorf(
				"incorrect entry %q: expected format: `\"host_full_name\",\"agent_rules\"`", record)
		}
		entries = append(entries, Entry{
			Host:  strings.TrimSpace(record[0]),
			Rules: strings.TrimSpace(record[1]),
		})
	}
	return entries, nil
}
