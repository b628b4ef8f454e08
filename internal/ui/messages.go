package ui

import (
	"postgrator/internal/model"
	"postgrator/internal/progress"
)

type uploadResultMsg struct {
	JobID string
	Err   error
}

type monitorUpdateMsg struct {
	U progress.Update
}

type monitorStoppedMsg struct {
	JobID string
}

type tablesLoadedMsg struct {
	JobID  string
	Tables []model.TableMetadata
	Err    error
}

// pageLoadedMsg carries the browser position read after the fetch, so the
// view never has to lock the browser while a fetch is running.
type pageLoadedMsg struct {
	Table      string
	Page       *model.RowPage
	PageNum    int
	TotalPages int
	Total      int64
	Err        error
}
