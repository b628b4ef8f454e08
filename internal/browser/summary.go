package browser

import "postgrator/internal/model"

// Summary aggregates the table list of a finished job.
type Summary struct {
	Tables    int
	TotalRows int64
	Succeeded int
	Failed    []model.TableMetadata
}

// Summarize counts rows over all tables and separates the failed ones.
// A table succeeded when it was copied without an error.
func Summarize(tables []model.TableMetadata) Summary {
	s := Summary{Tables: len(tables)}
	for _, t := range tables {
		s.TotalRows += t.RowCount
		if t.Succeeded() {
			s.Succeeded++
			continue
		}
		s.Failed = append(s.Failed, t)
	}
	return s
}
