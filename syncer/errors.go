package syncer

import (
	"errors"
	"fmt"
)

// Stage is the position of a sync attempt in its state machine:
// Idle → Exporting → Transmitting → AwaitingResponse → Importing → Committed,
// or Failed from any stage.
type Stage int

const (
	StageIdle Stage = iota
	StageExporting
	StageTransmitting
	StageAwaitingResponse
	StageImporting
	StageCommitted
	StageFailed
	// Bootstrap-only stages
	StageRestoring
	StageFetchingFiles
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageExporting:
		return "exporting"
	case StageTransmitting:
		return "transmitting"
	case StageAwaitingResponse:
		return "awaiting_response"
	case StageImporting:
		return "importing"
	case StageCommitted:
		return "committed"
	case StageFailed:
		return "failed"
	case StageRestoring:
		return "restoring"
	case StageFetchingFiles:
		return "fetching_files"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ErrorKind classifies sync failures. None of them is retried
// automatically; retry policy belongs to the caller.
type ErrorKind int

const (
	// KindTransport covers an unreachable peer or a non-2xx response.
	KindTransport ErrorKind = iota + 1
	// KindSerialization covers payloads that cannot be encoded or decoded.
	KindSerialization
	// KindLocal covers failures of the local store (export, import, restore).
	KindLocal
	// KindFileFetch covers a single attachment that could not be fetched
	// during bootstrap. It never fails the bootstrap itself.
	KindFileFetch
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindSerialization:
		return "serialization"
	case KindLocal:
		return "local"
	case KindFileFetch:
		return "file_fetch"
	}
	return "unknown"
}

// SyncError reports where and why a sync attempt failed.
type SyncError struct {
	Stage      Stage
	Kind       ErrorKind
	StatusCode int // HTTP status for transport errors, when one was received
	Err        error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("sync failed while %s (%s error)", e.Stage, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error { return e.Err }

func newSyncError(stage Stage, kind ErrorKind, err error) *SyncError {
	return &SyncError{Stage: stage, Kind: kind, Err: err}
}

// KindOf returns the kind of a *SyncError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

var (
	// ErrNoSyncHistory is returned by PushToServer on a node that has never
	// synced. Bootstrap it, or push with an explicit mark.
	ErrNoSyncHistory = errors.New("no sync history: bootstrap first or push with an explicit mark")

	// ErrSyncInProgress is returned when another sync or bootstrap is
	// already running on this node.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrUnsupportedVersion is returned for payloads from a newer wire format.
	ErrUnsupportedVersion = errors.New("unsupported payload version")
)
