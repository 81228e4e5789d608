package tile

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
)

// streamCSV reads delimited rows and sends them to a channel. The first row
// is delivered like any other; callers treat it as the header. Both channels
// are closed when processing completes.
func streamCSV(ctx context.Context, r io.Reader, delim rune) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if delim != 0 {
			reader.Comma = delim
		}
		reader.FieldsPerRecord = -1 // short rows are counted, not fatal
		reader.LazyQuotes = true

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "tile: csv context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "tile: read csv row")
				return
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "tile: csv context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV parses a delimited tile table. Malformed rows are skipped and
// counted; a missing required column is returned as an error.
func ReadCSV(ctx context.Context, r io.Reader, delim rune, source string) (*LoadResult, error) {
	rowCh, errCh := streamCSV(ctx, r, delim)
	return collectRows(source, rowCh, errCh)
}

// collectRows consumes a row stream whose first row is the header.
func collectRows(source string, rowCh <-chan []string, errCh <-chan error) (*LoadResult, error) {
	res := newLoadResult(source)

	var (
		cols      columns
		haveCols  bool
		headerErr error
		rowNum    int
	)
	for row := range rowCh {
		if headerErr != nil {
			continue // drain so the producer can exit
		}
		if !haveCols {
			cols, headerErr = resolveColumns(row)
			haveCols = headerErr == nil
			continue
		}
		rowNum++
		rec, reason, ok := cols.parseRow(row, rowNum)
		if !ok {
			res.skip(reason)
			continue
		}
		res.Tiles = append(res.Tiles, rec)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	if headerErr != nil {
		return nil, headerErr
	}
	if !haveCols {
		return nil, eris.Errorf("tile: %s has no header row", source)
	}
	return res, nil
}
