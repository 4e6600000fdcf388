package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shikya/call-record-ingestor/internal/record"
)

type (
	OutcomeKind int
	SkipReason  int

	// Outcome describes what happened to a single file presented
	// to the pipeline. A skipped file is never persisted and never
	// moved. An inserted file has a record, and may additionally
	// carry the error which prevented it from being relocated.
	Outcome struct {
		Path          string
		Kind          OutcomeKind
		Reason        SkipReason
		Cause         error
		Record        *record.PhoneRecord
		Destination   string
		RelocationErr error
	}

	// Summary aggregates the outcomes of a single run over the source root.
	Summary struct {
		RunID            uuid.UUID
		StartedAt        time.Time
		FinishedAt       time.Time
		Discovered       int
		Inserted         int
		Relocated        int
		RelocationFailed int
		SkippedParse     int
		SkippedMetadata  int
		SkippedDuplicate int
		Aborted          bool
	}
)

const (
	Inserted OutcomeKind = iota
	Skipped
)

const (
	NotSkipped SkipReason = iota
	ParseFailure
	MetadataFailure
	Duplicate
)

func (kind OutcomeKind) String() string {
	switch kind {
	case Inserted:
		return "inserted"
	case Skipped:
		return "skipped"
	}

	return fmt.Sprintf("OutcomeKind(%d)", int(kind))
}

func (reason SkipReason) String() string {
	switch reason {
	case NotSkipped:
		return "none"
	case ParseFailure:
		return "parse_failure"
	case MetadataFailure:
		return "metadata_failure"
	case Duplicate:
		return "duplicate"
	}

	return fmt.Sprintf("SkipReason(%d)", int(reason))
}

func (outcome *Outcome) String() string {
	if outcome.Kind == Skipped {
		return fmt.Sprintf("Outcome{%s skipped(%s): %v}", outcome.Path, outcome.Reason, outcome.Cause)
	}

	var id int64
	if outcome.Record != nil {
		id = outcome.Record.ID
	}
	if outcome.RelocationErr != nil {
		return fmt.Sprintf("Outcome{%s inserted(id=%d) relocation failed: %v}", outcome.Path, id, outcome.RelocationErr)
	}
	if outcome.Destination != "" {
		return fmt.Sprintf("Outcome{%s inserted(id=%d) -> %s}", outcome.Path, id, outcome.Destination)
	}

	return fmt.Sprintf("Outcome{%s inserted(id=%d)}", outcome.Path, id)
}

// Relocated reports whether the file was placed in to the archive.
func (outcome *Outcome) Relocated() bool {
	return outcome.Kind == Inserted && outcome.RelocationErr == nil && outcome.Destination != ""
}

func skipped(path string, reason SkipReason, cause error) *Outcome {
	return &Outcome{Path: path, Kind: Skipped, Reason: reason, Cause: cause}
}

// Add folds the outcome provided in to the summary counters.
func (summary *Summary) Add(outcome *Outcome) {
	switch outcome.Kind {
	case Inserted:
		summary.Inserted++
		if outcome.RelocationErr != nil {
			summary.RelocationFailed++
		} else if outcome.Relocated() {
			summary.Relocated++
		}
	case Skipped:
		switch outcome.Reason {
		case ParseFailure:
			summary.SkippedParse++
		case MetadataFailure:
			summary.SkippedMetadata++
		case Duplicate:
			summary.SkippedDuplicate++
		}
	}
}

func (summary *Summary) Skipped() int {
	return summary.SkippedParse + summary.SkippedMetadata + summary.SkippedDuplicate
}

func (summary *Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "discovered=%d inserted=%d relocated=%d relocation_failed=%d", summary.Discovered, summary.Inserted, summary.Relocated, summary.RelocationFailed)
	fmt.Fprintf(&sb, " skipped(parse=%d metadata=%d duplicate=%d)", summary.SkippedParse, summary.SkippedMetadata, summary.SkippedDuplicate)
	if !summary.FinishedAt.IsZero() {
		fmt.Fprintf(&sb, " elapsed=%s", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	}
	if summary.Aborted {
		sb.WriteString(" ABORTED")
	}

	return sb.String()
}
