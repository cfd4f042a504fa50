package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures StreamCSV.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // 0 disables comment handling
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV parses r and delivers every row, header included, on the
// returned row channel. Both channels close when parsing ends; at most one
// error is sent. Rows may have varying field counts — manual import files
// are ragged more often than not.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rows := make(chan []string, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(rows)
		defer close(errs)

		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = opts.LazyQuotes
		if opts.Delimiter != 0 {
			cr.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			cr.Comment = opts.Comment
		}

		for {
			record, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- eris.Wrap(err, "csv: read row")
				return
			}
			if opts.TrimSpace {
				for i := range record {
					record[i] = strings.TrimSpace(record[i])
				}
			}
			select {
			case rows <- record:
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "csv: cancelled")
				return
			}
		}
	}()

	return rows, errs
}
