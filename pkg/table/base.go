package table

import (
	"archive/zip"
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Header holds the "# key: value" comment lines at the top of a BASE file,
// e.g. Site and Version.
type Header map[string]string

// ReadBase decodes a BASE comma-separated file. Comment lines before the
// column header become the returned Header.
func ReadBase(r io.Reader) (*Table, Header, error) {
	br := bufio.NewReader(r)
	header := Header{}

	for {
		peek, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return &Table{}, header, nil
			}
			return nil, nil, fmt.Errorf("reading base header: %w", err)
		}
		if peek[0] != '#' {
			break
		}
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("reading base header: %w", err)
		}
		parseComment(header, line)
	}

	reader := csv.NewReader(br)
	reader.TrimLeadingSpace = true

	names, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{}, header, nil
		}
		return nil, nil, fmt.Errorf("reading base column names: %w", err)
	}

	t := &Table{Columns: make([]Column, len(names))}
	for i, n := range names {
		t.Columns[i].Name = strings.TrimSpace(n)
	}
	if err := t.Validate(); err != nil {
		return nil, nil, err
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("base line %d: %w", line, err)
		}
		for i, field := range record {
			v, err := parseValue(field)
			if err != nil {
				return nil, nil, fmt.Errorf("base line %d, column %s: %w", line, t.Columns[i].Name, err)
			}
			t.Columns[i].Values = append(t.Columns[i].Values, v)
		}
	}

	return t, header, nil
}

func parseComment(h Header, line string) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "#"))
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	h[strings.TrimSpace(key)] = strings.TrimSpace(value)
}

func parseValue(field string) (float64, error) {
	field = strings.TrimSpace(field)
	switch field {
	case "", "NA", "NaN", "nan":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", field)
	}
	if v == MissingValue {
		return math.NaN(), nil
	}
	return v, nil
}

// WriteBase encodes t as a BASE file. Header keys are written in sorted
// order; missing values are written as -9999.
func WriteBase(w io.Writer, t *Table, header Header) error {
	if err := t.Validate(); err != nil {
		return err
	}

	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "# %s: %s\n", k, header[k]); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}

	record := make([]string, len(t.Columns))
	for row := 0; row < t.Rows(); row++ {
		for i, c := range t.Columns {
			record[i] = formatValue(c.Values[row])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatValue writes integral values, timestamps included, without a
// decimal point.
func formatValue(v float64) string {
	if IsMissing(v) {
		return strconv.Itoa(MissingValue)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadBaseZip opens a downloaded archive and decodes its BASE csv member.
func ReadBaseZip(filename string) (*Table, Header, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", filename, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		base := path.Base(f.Name)
		if !strings.Contains(base, "_BASE_") || !strings.HasSuffix(strings.ToLower(base), ".csv") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s in %s: %w", f.Name, filename, err)
		}
		defer rc.Close()
		return ReadBase(rc)
	}
	return nil, nil, fmt.Errorf("no BASE csv found in %s", filename)
}
