package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var ErrEmptyHeader = errors.New("csv_missing_header")

// Source yields import rows as string-keyed optional fields. Next returns
// io.EOF after the last row.
type Source interface {
	Next() (subdomain.Fields, error)
}

// Sink receives exported subscribers in order.
type Sink interface {
	Write(s subdomain.Subscriber) error
	Flush() error
}

// CSVSource reads a headered CSV file. Column names are matched
// case-insensitively; unknown columns are passed through and ignored by
// normalization.
type CSVSource struct {
	reader *csv.Reader
	header []string
	line   int
}

func NewCSVSource(r io.Reader) (*CSVSource, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	return &CSVSource{reader: reader, header: header, line: 1}, nil
}

func (s *CSVSource) Next() (subdomain.Fields, error) {
	for {
		record, err := s.reader.Read()
		if err != nil {
			return nil, err
		}
		s.line++

		fields := make(subdomain.Fields, len(s.header))
		blank := true
		for i, name := range s.header {
			if name == "" || i >= len(record) {
				continue
			}
			value := strings.TrimSpace(record[i])
			if value != "" {
				blank = false
			}
			fields[name] = value
		}
		if blank {
			continue
		}
		return fields, nil
	}
}

// Line is the 1-based line of the last record returned.
func (s *CSVSource) Line() int {
	return s.line
}

// CSVSink writes subscribers in the fixed export column order, preceded by
// a UTF-8 BOM so spreadsheet tools detect the encoding.
type CSVSink struct {
	out         io.Writer
	writer      *csv.Writer
	wroteHeader bool
}

func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{out: w, writer: csv.NewWriter(w)}
}

func (s *CSVSink) header() error {
	if s.wroteHeader {
		return nil
	}
	s.wroteHeader = true
	if _, err := s.out.Write(utf8BOM); err != nil {
		return err
	}
	return s.writer.Write(subdomain.ExportColumns)
}

func (s *CSVSink) Write(sub subdomain.Subscriber) error {
	if err := s.header(); err != nil {
		return err
	}
	return s.writer.Write(exportRecord(sub))
}

// Flush writes the header for empty exports and flushes buffered rows.
func (s *CSVSink) Flush() error {
	if err := s.header(); err != nil {
		return err
	}
	s.writer.Flush()
	return s.writer.Error()
}

func exportRecord(s subdomain.Subscriber) []string {
	record := make([]string, 0, len(subdomain.ExportColumns))
	for _, column := range subdomain.ExportColumns {
		record = append(record, exportValue(s, column))
	}
	return record
}

func exportValue(s subdomain.Subscriber, column string) string {
	switch column {
	case subdomain.FieldName:
		return s.Name
	case subdomain.FieldContactHandle:
		if s.ContactHandle == nil {
			return ""
		}
		return *s.ContactHandle
	case subdomain.FieldExternalID:
		if s.ExternalID == nil {
			return ""
		}
		return strconv.FormatInt(*s.ExternalID, 10)
	case subdomain.FieldCustomerNo:
		return s.CustomerNo
	case subdomain.FieldPlan:
		return s.Plan
	case subdomain.FieldProfilesCount:
		return strconv.Itoa(s.ProfilesCount)
	case subdomain.FieldStartDate:
		return s.StartDate.String()
	case subdomain.FieldEndDate:
		return s.EndDate.String()
	case subdomain.FieldAmountPaid:
		return strconv.FormatInt(s.AmountPaid, 10)
	case subdomain.FieldStatus:
		return string(s.Status)
	case subdomain.FieldNote:
		return s.Note
	default:
		return ""
	}
}
