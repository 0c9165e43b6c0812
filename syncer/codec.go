package syncer

import (
	"sort"
	"time"

	"litman/models"

	"github.com/google/uuid"
	"github.com/rohanthewiz/serr"
	"github.com/vmihailenco/msgpack/v5"
)

// WireVersion is the payload format spoken by this build. Decoders reject
// anything newer.
const WireVersion = 1

// ContentType is sent with every sync payload.
const ContentType = "application/msgpack"

const (
	kindDiff     = "diff"
	kindSnapshot = "snapshot"
)

// envelope is the msgpack document exchanged by /sync and /dump.
// UUID columns travel as 16-byte binaries and timestamps as msgpack
// timestamps; everything else keeps its natural msgpack type.
type envelope struct {
	Version      int         `msgpack:"v"`
	Kind         string      `msgpack:"kind"`
	LowWaterMark time.Time   `msgpack:"lwm,omitempty"`
	TakenAt      time.Time   `msgpack:"taken_at,omitempty"`
	Tables       []wireTable `msgpack:"tables"`
	Links        []wireLinks `msgpack:"links"`
}

type wireTable struct {
	Name     string       `msgpack:"name"`
	Columns  []string     `msgpack:"columns"`
	Changes  []wireChange `msgpack:"changes,omitempty"`
	Inserted [][]any      `msgpack:"inserted,omitempty"`
	Updated  [][]any      `msgpack:"updated,omitempty"`
	Deleted  []any        `msgpack:"deleted,omitempty"`
	Rows     [][]any      `msgpack:"rows,omitempty"`
}

type wireChange struct {
	Seq       int64     `msgpack:"seq"`
	RowID     any       `msgpack:"row_id"`
	Op        int       `msgpack:"op"`
	ChangedAt time.Time `msgpack:"at"`
}

type wireLinks struct {
	Name     string           `msgpack:"name"`
	Changes  []wireLinkChange `msgpack:"changes,omitempty"`
	Inserted []wirePair       `msgpack:"inserted,omitempty"`
	Deleted  []wirePair       `msgpack:"deleted,omitempty"`
	Pairs    []wirePair       `msgpack:"pairs,omitempty"`
}

type wireLinkChange struct {
	Seq       int64     `msgpack:"seq"`
	IDA       any       `msgpack:"a"`
	IDB       any       `msgpack:"b"`
	Op        int       `msgpack:"op"`
	ChangedAt time.Time `msgpack:"at"`
}

type wirePair struct {
	A any `msgpack:"a"`
	B any `msgpack:"b"`
}

// EncodeDiff serializes a diff set for POST /sync.
func EncodeDiff(d *models.DiffSet) ([]byte, error) {
	if d == nil {
		return nil, serr.New("no diff to encode")
	}
	env := envelope{Version: WireVersion, Kind: kindDiff, LowWaterMark: d.LowWaterMark.UTC()}

	for _, name := range sortedKeys(d.Tables) {
		td := d.Tables[name]
		wt := wireTable{Name: name, Columns: td.Columns}
		for _, c := range td.Changes {
			wt.Changes = append(wt.Changes, wireChange{Seq: c.Seq, RowID: packID(c.RowID), Op: c.Op, ChangedAt: c.ChangedAt.UTC()})
		}
		wt.Inserted = packRows(name, td.Columns, td.Inserted)
		wt.Updated = packRows(name, td.Columns, td.Updated)
		for _, id := range td.Deleted {
			wt.Deleted = append(wt.Deleted, packID(id))
		}
		env.Tables = append(env.Tables, wt)
	}

	for _, name := range sortedKeys(d.Links) {
		ld := d.Links[name]
		wl := wireLinks{Name: name}
		for _, c := range ld.Changes {
			wl.Changes = append(wl.Changes, wireLinkChange{
				Seq: c.Seq, IDA: packID(c.IDA), IDB: packID(c.IDB), Op: c.Op, ChangedAt: c.ChangedAt.UTC(),
			})
		}
		wl.Inserted = packPairs(ld.Inserted)
		wl.Deleted = packPairs(ld.Deleted)
		env.Links = append(env.Links, wl)
	}

	b, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, serr.Wrap(err, "failed to encode diff")
	}
	return b, nil
}

// DecodeDiff parses a /sync payload back into a diff set with values
// normalized against the local catalog. Unknown tables and columns are
// passed through for the importer to judge.
func DecodeDiff(b []byte) (*models.DiffSet, error) {
	env, err := decodeEnvelope(b, kindDiff)
	if err != nil {
		return nil, err
	}
	if env.LowWaterMark.IsZero() {
		return nil, serr.Wrap(models.ErrNoLowWaterMark, "diff payload carries no low-water mark")
	}

	d := models.NewDiffSet(env.LowWaterMark)
	for _, wt := range env.Tables {
		td := &models.TableDiff{Columns: wt.Columns}
		for _, c := range wt.Changes {
			id, err := unpackID(c.RowID)
			if err != nil {
				return nil, err
			}
			td.Changes = append(td.Changes, models.ChangeEntry{Seq: c.Seq, RowID: id, Op: c.Op, ChangedAt: c.ChangedAt.UTC()})
		}
		if td.Inserted, err = unpackRows(wt.Name, wt.Columns, wt.Inserted); err != nil {
			return nil, err
		}
		if td.Updated, err = unpackRows(wt.Name, wt.Columns, wt.Updated); err != nil {
			return nil, err
		}
		for _, raw := range wt.Deleted {
			id, err := unpackID(raw)
			if err != nil {
				return nil, err
			}
			td.Deleted = append(td.Deleted, id)
		}
		d.Tables[wt.Name] = td
	}

	for _, wl := range env.Links {
		ld := &models.LinkDiff{}
		for _, c := range wl.Changes {
			a, err := unpackID(c.IDA)
			if err != nil {
				return nil, err
			}
			b, err := unpackID(c.IDB)
			if err != nil {
				return nil, err
			}
			ld.Changes = append(ld.Changes, models.LinkChangeEntry{Seq: c.Seq, IDA: a, IDB: b, Op: c.Op, ChangedAt: c.ChangedAt.UTC()})
		}
		if ld.Inserted, err = unpackPairs(wl.Inserted); err != nil {
			return nil, err
		}
		if ld.Deleted, err = unpackPairs(wl.Deleted); err != nil {
			return nil, err
		}
		d.Links[wl.Name] = ld
	}
	return d, nil
}

// EncodeSnapshot serializes a full dump for GET /dump.
func EncodeSnapshot(s *models.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, serr.New("no snapshot to encode")
	}
	env := envelope{Version: WireVersion, Kind: kindSnapshot, TakenAt: s.TakenAt.UTC()}

	for _, name := range sortedKeys(s.Tables) {
		tr := s.Tables[name]
		env.Tables = append(env.Tables, wireTable{
			Name:    name,
			Columns: tr.Columns,
			Rows:    packRows(name, tr.Columns, tr.Rows),
		})
	}
	for _, name := range sortedKeys(s.Links) {
		env.Links = append(env.Links, wireLinks{Name: name, Pairs: packPairs(s.Links[name])})
	}

	b, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, serr.Wrap(err, "failed to encode snapshot")
	}
	return b, nil
}

// DecodeSnapshot parses a /dump payload.
func DecodeSnapshot(b []byte) (*models.Snapshot, error) {
	env, err := decodeEnvelope(b, kindSnapshot)
	if err != nil {
		return nil, err
	}

	s := &models.Snapshot{
		TakenAt: env.TakenAt.UTC(),
		Tables:  make(map[string]*models.TableRows, len(env.Tables)),
		Links:   make(map[string][]models.LinkPair, len(env.Links)),
	}
	for _, wt := range env.Tables {
		rows, err := unpackRows(wt.Name, wt.Columns, wt.Rows)
		if err != nil {
			return nil, err
		}
		s.Tables[wt.Name] = &models.TableRows{Columns: wt.Columns, Rows: rows}
	}
	for _, wl := range env.Links {
		pairs, err := unpackPairs(wl.Pairs)
		if err != nil {
			return nil, err
		}
		s.Links[wl.Name] = pairs
	}
	return s, nil
}

func decodeEnvelope(b []byte, kind string) (*envelope, error) {
	if len(b) == 0 {
		return nil, serr.New("empty payload")
	}
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return nil, serr.Wrap(err, "failed to decode payload")
	}
	if env.Version < 1 || env.Version > WireVersion {
		return nil, ErrUnsupportedVersion
	}
	if env.Kind != kind {
		return nil, serr.New("expected a " + kind + " payload, got " + env.Kind)
	}
	return &env, nil
}

// packID sends canonical UUIDs as 16 raw bytes. Anything that does not
// parse travels as a string.
func packID(id string) any {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	b := parsed
	return b[:]
}

func unpackID(v any) (string, error) {
	id, err := models.NormalizeValue(models.Column{Name: "id", Type: models.ColUUID}, v)
	if err != nil {
		return "", err
	}
	s, _ := id.(string)
	if s == "" {
		return "", serr.New("missing id in payload")
	}
	return s, nil
}

func packRows(table string, columns []string, rows [][]any) [][]any {
	if len(rows) == 0 {
		return nil
	}
	cols := resolveColumns(table, columns)
	out := make([][]any, len(rows))
	for i, row := range rows {
		packed := make([]any, len(row))
		for j, v := range row {
			packed[j] = v
			if j >= len(cols) || cols[j] == nil {
				continue
			}
			switch cols[j].Type {
			case models.ColUUID:
				if s, ok := v.(string); ok {
					packed[j] = packID(s)
				}
			case models.ColTime:
				if t, ok := v.(time.Time); ok {
					packed[j] = t.UTC()
				}
			}
		}
		out[i] = packed
	}
	return out
}

func unpackRows(table string, columns []string, rows [][]any) ([][]any, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := resolveColumns(table, columns)
	out := make([][]any, len(rows))
	for i, row := range rows {
		values := make([]any, len(row))
		for j, v := range row {
			if j >= len(cols) || cols[j] == nil {
				values[j] = v
				continue
			}
			nv, err := models.NormalizeValue(*cols[j], v)
			if err != nil {
				return nil, serr.Wrap(err, "bad value in "+table)
			}
			values[j] = nv
		}
		out[i] = values
	}
	return out, nil
}

// resolveColumns maps payload column names onto the local catalog, leaving
// nil for columns this build does not know.
func resolveColumns(table string, columns []string) []*models.Column {
	t, ok := models.LookupTable(table)
	out := make([]*models.Column, len(columns))
	if !ok {
		return out
	}
	for i, name := range columns {
		if c, found := t.Column(name); found {
			out[i] = &c
		}
	}
	return out
}

func packPairs(pairs []models.LinkPair) []wirePair {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]wirePair, len(pairs))
	for i, p := range pairs {
		out[i] = wirePair{A: packID(p.A), B: packID(p.B)}
	}
	return out
}

func unpackPairs(pairs []wirePair) ([]models.LinkPair, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make([]models.LinkPair, len(pairs))
	for i, p := range pairs {
		a, err := unpackID(p.A)
		if err != nil {
			return nil, err
		}
		b, err := unpackID(p.B)
		if err != nil {
			return nil, err
		}
		out[i] = models.LinkPair{A: a, B: b}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
