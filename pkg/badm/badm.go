// Package badm reads BADM (biological, ancillary, disturbance and metadata)
// entries from BIF workbooks and their csv exports.
package badm

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tealeg/xlsx"
)

// Entry is one row of a BIF file.
type Entry struct {
	SiteID        string `json:"site_id"`
	GroupID       string `json:"group_id"`
	VariableGroup string `json:"variable_group"`
	Variable      string `json:"variable"`
	DataValue     string `json:"data_value"`
}

// Entries is a list of BADM rows with simple relational filters.
type Entries []Entry

var requiredColumns = []string{"SITE_ID", "GROUP_ID", "VARIABLE_GROUP", "VARIABLE", "DATAVALUE"}

// ReadXLSX reads the first sheet of a BIF workbook.
func ReadXLSX(filename string) (Entries, error) {
	f, err := xlsx.OpenFile(filename)
	if err != nil {
		return nil, fmt.Errorf("badm: opening %s: %w", filename, err)
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("badm: %s has no sheets", filename)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, r := range sheet.Rows {
		if r == nil {
			continue
		}
		cells := make([]string, len(r.Cells))
		for i, c := range r.Cells {
			if c != nil {
				cells[i] = strings.TrimSpace(c.Value)
			}
		}
		rows = append(rows, cells)
	}
	return fromRows(rows)
}

// ReadCSV reads a BIF csv export.
func ReadCSV(r io.Reader) (Entries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("badm: reading csv: %w", err)
		}
		rows = append(rows, record)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (Entries, error) {
	if len(rows) == 0 {
		return nil, errors.New("badm: file is empty")
	}

	headerMap := make(map[string]int)
	for i, h := range rows[0] {
		headerMap[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	for _, req := range requiredColumns {
		if _, ok := headerMap[req]; !ok {
			return nil, fmt.Errorf("badm: missing required header: %s", req)
		}
	}

	get := func(record []string, col string) string {
		if idx := headerMap[col]; idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	entries := make(Entries, 0, len(rows)-1)
	for _, record := range rows[1:] {
		e := Entry{
			SiteID:        get(record, "SITE_ID"),
			GroupID:       get(record, "GROUP_ID"),
			VariableGroup: get(record, "VARIABLE_GROUP"),
			Variable:      get(record, "VARIABLE"),
			DataValue:     get(record, "DATAVALUE"),
		}
		if e == (Entry{}) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// BySite returns the entries for one site.
func (es Entries) BySite(siteID string) Entries {
	return es.where(func(e Entry) bool { return e.SiteID == siteID })
}

// ByGroup returns the entries of one variable group, e.g. GRP_LOCATION.
func (es Entries) ByGroup(variableGroup string) Entries {
	return es.where(func(e Entry) bool { return e.VariableGroup == variableGroup })
}

// ByVariable returns the entries reporting one variable.
func (es Entries) ByVariable(variable string) Entries {
	return es.where(func(e Entry) bool { return e.Variable == variable })
}

func (es Entries) where(keep func(Entry) bool) Entries {
	var out Entries
	for _, e := range es {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Groups returns the distinct variable groups, sorted.
func (es Entries) Groups() []string {
	return es.distinct(func(e Entry) string { return e.VariableGroup })
}

// Variables returns the distinct variable names, sorted.
func (es Entries) Variables() []string {
	return es.distinct(func(e Entry) string { return e.Variable })
}

// Sites returns the distinct site ids, sorted.
func (es Entries) Sites() []string {
	return es.distinct(func(e Entry) string { return e.SiteID })
}

func (es Entries) distinct(key func(Entry) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range es {
		k := key(e)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
