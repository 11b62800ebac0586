// Package report renders a month's treatment counts and revenue as export
// artifacts and writes them to blob storage.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dentalcore/internal/blob"
	"dentalcore/pkg/domain"
)

// Format names an artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// DefaultFormats are rendered when ExportMonth is called without formats.
var DefaultFormats = []Format{FormatCSV, FormatJSON}

// KeyPrefix roots every exported artifact.
const KeyPrefix = "reports/"

var csvHeader = []string{"description", "count", "total_cost"}

// Row joins the count and revenue tuples of one treatment description.
type Row struct {
	Description string  `json:"description"`
	Count       int64   `json:"count"`
	TotalCost   float64 `json:"total_cost"`
}

// Totals sums every row of a month.
type Totals struct {
	Count     int64   `json:"count"`
	TotalCost float64 `json:"total_cost"`
}

// MonthReport is the data behind both month charts.
type MonthReport struct {
	Month       string    `json:"month"`
	GeneratedAt time.Time `json:"generated_at"`
	Rows        []Row     `json:"rows"`
	Totals      Totals    `json:"totals"`
}

// Artifact describes one stored export file.
type Artifact struct {
	ExportID    string `json:"export_id"`
	Month       string `json:"month"`
	Format      Format `json:"format"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size_bytes"`
	ETag        string `json:"etag,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Exporter builds month reports from a store and persists them as blobs.
type Exporter struct {
	reports domain.ReportRepository
	blobs   blob.Store
	now     func() time.Time
	newID   func() string
	expiry  time.Duration
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithClock sets the generated_at source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator replaces the export id source.
func WithIDGenerator(newID func() string) Option {
	return func(e *Exporter) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithURLExpiry sets the lifetime of artifact URLs.
func WithURLExpiry(d time.Duration) Option {
	return func(e *Exporter) { e.expiry = d }
}

// NewExporter wires an exporter over the given report source and blob store.
func NewExporter(reports domain.ReportRepository, blobs blob.Store, opts ...Option) *Exporter {
	e := &Exporter{
		reports: reports,
		blobs:   blobs,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build assembles the month report. A month without treatments yields no rows
// and zero totals.
func (e *Exporter) Build(ctx context.Context, month string) (MonthReport, error) {
	if err := domain.ValidateMonth(month); err != nil {
		return MonthReport{}, err
	}
	counts, err := e.reports.CountsByMonth(ctx, month)
	if err != nil {
		return MonthReport{}, fmt.Errorf("counts for %s: %w", month, err)
	}
	revenue, err := e.reports.RevenueByMonth(ctx, month)
	if err != nil {
		return MonthReport{}, fmt.Errorf("revenue for %s: %w", month, err)
	}

	byDesc := make(map[string]*Row, len(counts))
	for _, c := range counts {
		byDesc[c.Description] = &Row{Description: c.Description, Count: c.Count}
	}
	for _, r := range revenue {
		row, ok := byDesc[r.Description]
		if !ok {
			row = &Row{Description: r.Description}
			byDesc[r.Description] = row
		}
		row.TotalCost = r.Total
	}

	rep := MonthReport{Month: month, GeneratedAt: e.now(), Rows: make([]Row, 0, len(byDesc))}
	for _, row := range byDesc {
		rep.Rows = append(rep.Rows, *row)
		rep.Totals.Count += row.Count
		rep.Totals.TotalCost += row.TotalCost
	}
	sort.Slice(rep.Rows, func(i, j int) bool { return rep.Rows[i].Description < rep.Rows[j].Description })
	return rep, nil
}

// ExportMonth renders the month in each requested format and stores every
// artifact under reports/<month>/<export-id>.<ext>. All artifacts of one call
// share the export id.
func (e *Exporter) ExportMonth(ctx context.Context, month string, formats ...Format) ([]Artifact, error) {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	for _, f := range formats {
		if _, _, err := contentFor(f); err != nil {
			return nil, err
		}
	}
	rep, err := e.Build(ctx, month)
	if err != nil {
		return nil, err
	}

	exportID := e.newID()
	artifacts := make([]Artifact, 0, len(formats))
	for _, f := range formats {
		body, err := Render(rep, f)
		if err != nil {
			return nil, err
		}
		contentType, ext, _ := contentFor(f)
		key := KeyPrefix + month + "/" + exportID + "." + ext
		info, err := e.blobs.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"month": month, "export_id": exportID, "format": string(f)},
		})
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		url, err := e.blobs.PresignURL(ctx, key, blob.SignedURLOptions{Expiry: e.expiry})
		if err != nil && !errors.Is(err, blob.ErrUnsupported) {
			return nil, fmt.Errorf("url for %s: %w", key, err)
		}
		artifacts = append(artifacts, Artifact{
			ExportID:    exportID,
			Month:       month,
			Format:      f,
			Key:         key,
			ContentType: contentType,
			Size:        info.Size,
			ETag:        info.ETag,
			URL:         url,
		})
	}
	return artifacts, nil
}

// List returns the stored artifacts of a month, ordered by key.
func (e *Exporter) List(ctx context.Context, month string) ([]blob.Info, error) {
	if err := domain.ValidateMonth(month); err != nil {
		return nil, err
	}
	return e.blobs.List(ctx, KeyPrefix+month+"/")
}

// Render encodes rep in format f.
func Render(rep MonthReport, f Format) ([]byte, error) {
	switch f {
	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write(csvHeader)
		for _, row := range rep.Rows {
			_ = w.Write([]string{row.Description, strconv.FormatInt(row.Count, 10), formatCost(row.TotalCost)})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("encode csv: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(out, '\n'), nil
	default:
		return nil, unknownFormat(f)
	}
}

// ParseFormats maps names to formats, rejecting unknown names.
func ParseFormats(names ...string) ([]Format, error) {
	out := make([]Format, 0, len(names))
	for _, n := range names {
		f := Format(n)
		if _, _, err := contentFor(f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func contentFor(f Format) (contentType, ext string, err error) {
	switch f {
	case FormatCSV:
		return "text/csv", "csv", nil
	case FormatJSON:
		return "application/json", "json", nil
	default:
		return "", "", unknownFormat(f)
	}
}

func unknownFormat(f Format) error {
	return fmt.Errorf("%w: unknown report format %q", domain.ErrInvalidInput, f)
}

func formatCost(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
