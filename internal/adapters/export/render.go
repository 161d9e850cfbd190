// Package export renders engine snapshots as CSV or JSON and stores the
// artifacts in blob storage through an asynchronous worker.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"territorycore/internal/aggregate"
	"territorycore/internal/engine"
)

// Format is an artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Report names an exportable engine view.
type Report string

const (
	ReportTerritories      Report = "territories"
	ReportKeys             Report = "keys"
	ReportRecent           Report = "recent"
	ReportRecentPhone      Report = "recent-phone"
	ReportPhoneTerritories Report = "phone-territories"
	ReportRecalls          Report = "recalls"
)

// Reports lists every report in a stable order.
var Reports = []Report{ReportTerritories, ReportKeys, ReportRecent, ReportRecentPhone, ReportPhoneTerritories, ReportRecalls}

var (
	// ErrNotReady reports a view the engine has not published yet.
	ErrNotReady = errors.New("view not published yet")
	// ErrUnknownReport reports an unsupported report name.
	ErrUnknownReport = errors.New("unknown report")
	// ErrUnknownFormat reports an unsupported format.
	ErrUnknownFormat = errors.New("unknown format")
)

// Source exposes the published views. *engine.Engine satisfies it.
type Source interface {
	Territories() *engine.Topic[[]aggregate.TerritoryView]
	Keys() *engine.Topic[[]aggregate.KeyView]
	Recent() *engine.Topic[[]aggregate.RecentTerritory]
	RecentPhone() *engine.Topic[[]aggregate.RecentPhoneTerritory]
	PhoneTerritories() *engine.Topic[[]aggregate.PhoneTerritoryView]
	Recalls() *engine.Topic[[]aggregate.RecallView]
}

// Table is the tabular form of a report.
type Table struct {
	Header []string
	Rows   [][]string
}

// Rendered is an encoded report.
type Rendered struct {
	Report      Report
	Format      Format
	ContentType string
	Rows        int
	Payload     []byte
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ParseReport validates a report name.
func ParseReport(s string) (Report, error) {
	r := Report(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Reports {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReport, s)
}

// Render encodes the latest value of a report.
func Render(src Source, report Report, format Format) (Rendered, error) {
	data, table, err := collect(src, report)
	if err != nil {
		return Rendered{}, err
	}
	out := Rendered{Report: report, Format: format, Rows: len(table.Rows)}
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(data)
		if err != nil {
			return Rendered{}, fmt.Errorf("marshal json: %w", err)
		}
		out.ContentType = "application/json"
		out.Payload = payload
	case FormatCSV:
		payload, err := encodeCSV(table)
		if err != nil {
			return Rendered{}, err
		}
		out.ContentType = "text/csv"
		out.Payload = payload
	default:
		return Rendered{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return out, nil
}

// Tabulate returns the latest value of a report as rows.
func Tabulate(src Source, report Report) (Table, error) {
	_, table, err := collect(src, report)
	return table, err
}

func latest[T any](topic *engine.Topic[T], report Report) (T, error) {
	v, ok := topic.Latest()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: %w", report, ErrNotReady)
	}
	return v, nil
}

func collect(src Source, report Report) (any, Table, error) {
	switch report {
	case ReportTerritories:
		v, err := latest(src.Territories(), report)
		return v, territoryTable(v), err
	case ReportKeys:
		v, err := latest(src.Keys(), report)
		return v, keyTable(v), err
	case ReportRecent:
		v, err := latest(src.Recent(), report)
		return v, recentTable(v), err
	case ReportRecentPhone:
		v, err := latest(src.RecentPhone(), report)
		return v, recentPhoneTable(v), err
	case ReportPhoneTerritories:
		v, err := latest(src.PhoneTerritories(), report)
		return v, phoneTable(v), err
	case ReportRecalls:
		v, err := latest(src.Recalls(), report)
		return v, recallTable(v), err
	default:
		return nil, Table{}, fmt.Errorf("%w: %q", ErrUnknownReport, report)
	}
}

func encodeCSV(t Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}

func millis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func num(n int32) string { return strconv.FormatInt(int64(n), 10) }

func territoryTable(views []aggregate.TerritoryView) Table {
	t := Table{Header: []string{"id", "number", "description", "addresses", "houses", "access"}}
	for _, v := range views {
		t.Rows = append(t.Rows, []string{
			v.Territory.ID,
			num(v.Territory.Number),
			v.Territory.Description,
			strconv.Itoa(len(v.Addresses)),
			strconv.Itoa(v.HouseCount),
			v.AccessLevel.String(),
		})
	}
	return t
}

func keyTable(views []aggregate.KeyView) Table {
	t := Table{Header: []string{"id", "name", "owner", "expires", "expired", "territories", "users"}}
	for _, v := range views {
		numbers := make([]string, 0, len(v.Territories))
		for _, territory := range v.Territories {
			numbers = append(numbers, num(territory.Number))
		}
		t.Rows = append(t.Rows, []string{
			v.Token.ID,
			v.Token.Name,
			v.Token.Owner,
			millis(v.Token.Expires),
			strconv.FormatBool(v.Expired),
			strings.Join(numbers, " "),
			strconv.Itoa(len(v.Users)),
		})
	}
	return t
}

func recentTable(views []aggregate.RecentTerritory) Table {
	t := Table{Header: []string{"id", "number", "description", "last_visit", "user"}}
	for _, v := range views {
		t.Rows = append(t.Rows, []string{
			v.Territory.ID,
			num(v.Territory.Number),
			v.Territory.Description,
			millis(v.LastVisit.Visit.Date),
			v.LastVisit.Visit.UserName,
		})
	}
	return t
}

func recentPhoneTable(views []aggregate.RecentPhoneTerritory) Table {
	t := Table{Header: []string{"id", "number", "description", "last_call", "user"}}
	for _, v := range views {
		t.Rows = append(t.Rows, []string{
			v.Territory.ID,
			num(v.Territory.Number),
			v.Territory.Description,
			millis(v.LastCall.Call.Date),
			v.LastCall.Call.UserName,
		})
	}
	return t
}

func phoneTable(views []aggregate.PhoneTerritoryView) Table {
	t := Table{Header: []string{"id", "number", "description", "numbers", "calls", "access"}}
	for _, v := range views {
		t.Rows = append(t.Rows, []string{
			v.Territory.ID,
			num(v.Territory.Number),
			v.Territory.Description,
			strconv.Itoa(v.NumberCount),
			strconv.Itoa(v.CallCount),
			v.AccessLevel.String(),
		})
	}
	return t
}

func recallTable(views []aggregate.RecallView) Table {
	t := Table{Header: []string{"territory", "address", "house", "created_at"}}
	for _, v := range views {
		t.Rows = append(t.Rows, []string{
			num(v.Territory.Number),
			v.Address.Address,
			v.House.Number,
			v.Recall.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return t
}
