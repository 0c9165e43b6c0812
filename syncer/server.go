package syncer

import (
	"context"
	"time"

	"litman/metrics"
	"litman/models"

	"github.com/rohanthewiz/logger"
)

// Merger is the server half of the protocol: it applies client diffs and
// hands out full dumps.
type Merger struct {
	store   *models.Store
	metrics *metrics.Metrics
}

// NewMerger returns a merger over the server's store. m may be nil.
func NewMerger(store *models.Store, m *metrics.Metrics) *Merger {
	return &Merger{store: store, metrics: m}
}

// MergeFromClient imports the client's diff, then answers with every
// server-side change since the client's low-water mark. The import is not
// logged, so the client's own changes are never echoed back. The server does
// not record the exchange in its sync log; its changes stay eligible for
// other clients.
func (m *Merger) MergeFromClient(ctx context.Context, payload []byte) ([]byte, error) {
	started := time.Now()
	out, err := m.merge(ctx, payload)
	m.metrics.ObserveSync(metrics.RoleMerge, started, err)
	if err != nil {
		logger.LogErr(err, "merge from client failed")
		return nil, err
	}
	return out, nil
}

func (m *Merger) merge(ctx context.Context, payload []byte) ([]byte, error) {
	incoming, err := DecodeDiff(payload)
	if err != nil {
		return nil, newSyncError(StageAwaitingResponse, KindSerialization, err)
	}
	m.metrics.ObservePayload("received", len(payload))

	if err := m.store.Import(ctx, incoming); err != nil {
		return nil, newSyncError(StageImporting, KindLocal, err)
	}

	reply, err := m.store.Export(ctx, incoming.LowWaterMark)
	if err != nil {
		return nil, newSyncError(StageExporting, KindLocal, err)
	}
	out, err := EncodeDiff(reply)
	if err != nil {
		return nil, newSyncError(StageExporting, KindSerialization, err)
	}
	m.metrics.ObservePayload("sent", len(out))
	m.metrics.AddDiff("received", incoming.Counts())
	m.metrics.AddDiff("sent", reply.Counts())

	logger.Info("Merged client changes",
		"mark", incoming.LowWaterMark.Format(time.RFC3339Nano),
		"received", incoming.Counts().Total(),
		"sent", reply.Counts().Total(),
	)
	return out, nil
}

// Dump encodes a full snapshot of the server's library.
func (m *Merger) Dump(ctx context.Context) ([]byte, error) {
	started := time.Now()
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		m.metrics.ObserveSync(metrics.RoleDump, started, err)
		return nil, newSyncError(StageExporting, KindLocal, err)
	}
	out, err := EncodeSnapshot(snap)
	if err != nil {
		m.metrics.ObserveSync(metrics.RoleDump, started, err)
		return nil, newSyncError(StageExporting, KindSerialization, err)
	}
	m.metrics.ObserveSync(metrics.RoleDump, started, nil)
	m.metrics.ObservePayload("sent", len(out))
	return out, nil
}
