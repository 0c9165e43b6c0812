package syncer_test

import (
	"errors"
	"testing"
	"time"

	"litman/models"
	"litman/syncer"

	"github.com/vmihailenco/msgpack/v5"
)

func TestDiffCodecPreservesTypes(t *testing.T) {
	mark := time.Date(2024, 3, 1, 9, 0, 0, 123456000, time.UTC)
	id := models.NewID()
	other := models.NewID()
	stamp := mark.Add(90 * time.Second)

	in := models.NewDiffSet(mark)
	in.Tables["entry"] = &models.TableDiff{
		Columns: []string{"id", "type", "title", "year", "created_at", "modified_at"},
		Changes: []models.ChangeEntry{{Seq: 7, RowID: id, Op: models.OperationInsert, ChangedAt: stamp}},
		Inserted: [][]any{
			{id, models.EntryTypeBook, "The Art of Computer Programming", int64(1968), stamp, stamp},
		},
	}
	in.Tables["file"] = &models.TableDiff{
		Columns: []string{"id", "path", "type", "default_open"},
		Updated: [][]any{{other, "taocp.pdf", nil, true}},
		Deleted: []string{models.NewID()},
	}
	in.Links["file_link"] = &models.LinkDiff{
		Inserted: []models.LinkPair{{A: id, B: other}},
	}

	payload, err := syncer.EncodeDiff(in)
	if err != nil {
		t.Fatalf("EncodeDiff failed: %v", err)
	}
	out, err := syncer.DecodeDiff(payload)
	if err != nil {
		t.Fatalf("DecodeDiff failed: %v", err)
	}

	if !out.LowWaterMark.Equal(mark) {
		t.Errorf("low-water mark: got %v want %v", out.LowWaterMark, mark)
	}
	row := models.RowAt(out.Tables["entry"].Columns, out.Tables["entry"].Inserted[0])
	if row.ID() != id {
		t.Errorf("uuid did not survive: got %v want %s", row["id"], id)
	}
	if year, ok := row["year"].(int64); !ok || year != 1968 {
		t.Errorf("year should decode as int64 1968, got %T %v", row["year"], row["year"])
	}
	if ts, ok := row["created_at"].(time.Time); !ok || !ts.Equal(stamp) || ts.Location() != time.UTC {
		t.Errorf("timestamp should decode as UTC %v, got %T %v", stamp, row["created_at"], row["created_at"])
	}
	if c := out.Tables["entry"].Changes; len(c) != 1 || c[0].RowID != id || c[0].Seq != 7 {
		t.Errorf("change entries did not survive: %+v", c)
	}

	file := models.RowAt(out.Tables["file"].Columns, out.Tables["file"].Updated[0])
	if file["type"] != nil || file["default_open"] != true {
		t.Errorf("unexpected file row %v", file)
	}
	if got := out.Links["file_link"].Inserted; len(got) != 1 || got[0] != (models.LinkPair{A: id, B: other}) {
		t.Errorf("link pairs did not survive: %v", got)
	}
	if in.Counts() != out.Counts() {
		t.Errorf("counts differ: %+v vs %+v", in.Counts(), out.Counts())
	}
}

func TestDecodeRejectsNewerVersion(t *testing.T) {
	payload, err := msgpack.Marshal(map[string]any{"v": syncer.WireVersion + 1, "kind": "diff"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if _, err := syncer.DecodeDiff(payload); !errors.Is(err, syncer.ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	snap := &models.Snapshot{TakenAt: time.Now(), Tables: map[string]*models.TableRows{}}
	payload, err := syncer.EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}
	if _, err := syncer.DecodeDiff(payload); err == nil {
		t.Error("expected a snapshot payload to be rejected as a diff")
	}
	if _, err := syncer.DecodeDiff([]byte("not msgpack at all")); err == nil {
		t.Error("expected garbage to be rejected")
	}
}
