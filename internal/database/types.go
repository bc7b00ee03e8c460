package database

import (
	"context"
	"fmt"

	"github.com/chrissnell/fluxdata/pkg/config"
	"github.com/chrissnell/fluxdata/pkg/table"
	"github.com/chrissnell/fluxdata/pkg/varname"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExportResult summarizes one ExportTable call.
type ExportResult struct {
	BatchID uuid.UUID
	Rows    int
	Skipped int // missing values
}

// ExportTable writes every non-missing value of t as an observation row.
// ds must come from decoding t's column names; columns the decoder marks
// structural are not exported. Rows are built and inserted one batch at a
// time inside a single transaction, and share a fresh batch id so an export
// can be removed with DeleteBatch.
func (c *Client) ExportTable(ctx context.Context, siteID string, t *table.Table, ds []varname.Descriptor) (*ExportResult, error) {
	batchID := uuid.New()
	batchSize := c.config.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultExportBatchSize
	}

	var rows, skipped int
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rows, skipped, err = observationBatches(siteID, t, ds, batchID, batchSize, func(batch []Observation) error {
			return tx.Create(&batch).Error
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not store observations for %s: %w", siteID, err)
	}

	c.logger.Infow("exported table", "site_id", siteID, "batch_id", batchID, "rows", rows, "skipped", skipped)
	return &ExportResult{BatchID: batchID, Rows: rows, Skipped: skipped}, nil
}

// DeleteBatch removes every row written by one export.
func (c *Client) DeleteBatch(ctx context.Context, batchID uuid.UUID) (int64, error) {
	res := c.DB.WithContext(ctx).Where("batch_id = ?", batchID).Delete(&Observation{})
	if res.Error != nil {
		return 0, fmt.Errorf("could not delete batch %s: %w", batchID, res.Error)
	}
	return res.RowsAffected, nil
}

// observationBatches converts t to long-format rows and hands them to emit
// in batches of at most size. The batch slice is reused between calls.
// Inputs are checked before the first emit.
func observationBatches(siteID string, t *table.Table, ds []varname.Descriptor, batchID uuid.UUID, size int, emit func([]Observation) error) (rows, skipped int, err error) {
	if err := t.Validate(); err != nil {
		return 0, 0, err
	}
	if len(ds) != len(t.Columns) {
		return 0, 0, fmt.Errorf("got %d descriptors for %d columns", len(ds), len(t.Columns))
	}
	for i, col := range t.Columns {
		if ds[i].Name != col.Name {
			return 0, 0, fmt.Errorf("descriptor %d is for %s, column is %s", i, ds[i].Name, col.Name)
		}
	}
	times, err := t.Times(table.TimestampStart)
	if err != nil {
		return 0, 0, err
	}
	if size <= 0 {
		size = config.DefaultExportBatchSize
	}

	batch := make([]Observation, 0, size)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := emit(batch); err != nil {
			return err
		}
		rows += len(batch)
		batch = batch[:0]
		return nil
	}

	for i, col := range t.Columns {
		d := ds[i]
		if d.Match == varname.MatchStructural {
			continue
		}

		qualifiers := d.Qualifiers
		if qualifiers == nil {
			qualifiers = []string{}
		}
		for row, v := range col.Values {
			if table.IsMissing(v) || times[row].IsZero() {
				skipped++
				continue
			}
			o := Observation{
				Time:      times[row],
				SiteID:    siteID,
				Variable:  col.Name,
				BaseName:  d.BaseName,
				GapFilled: d.IsGapFilled,
				Value:     v,
				BatchID:   batchID,
			}
			if err := o.Qualifiers.Set(qualifiers); err != nil {
				return rows, skipped, fmt.Errorf("encoding qualifiers of %s: %w", col.Name, err)
			}
			batch = append(batch, o)
			if len(batch) == size {
				if err := flush(); err != nil {
					return rows, skipped, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return rows, skipped, err
	}
	return rows, skipped, nil
}
