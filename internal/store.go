package internal

import (
	"github.com/shikya/call-record-ingestor/internal/database"
	"github.com/shikya/call-record-ingestor/internal/record"
)

type (
	// dataOrchestrator links the 'dumb' record store to the database
	// connection managed by the ingestor. Consumers call it without needing
	// to know which connection (or dialect) is in use.
	dataOrchestrator struct {
		db          database.Manager
		RecordStore *record.Store
	}
)

func newDataOrchestrator(db database.Manager) *dataOrchestrator {
	return &dataOrchestrator{
		db:          db,
		RecordStore: record.NewStore(),
	}
}

func (orchestrator *dataOrchestrator) SaveRecord(rec *record.PhoneRecord) error {
	return orchestrator.RecordStore.Insert(orchestrator.db.GetSqlxDb(), rec)
}

func (orchestrator *dataOrchestrator) ListRecords(filter record.Filter) ([]*record.PhoneRecord, error) {
	return orchestrator.RecordStore.List(orchestrator.db.GetSqlxDb(), filter)
}
