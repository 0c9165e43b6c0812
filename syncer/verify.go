package syncer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"litman/models"

	"github.com/rohanthewiz/logger"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// VerifyReport is the advisory comparison of two libraries. Verification
// never changes either side.
type VerifyReport struct {
	Consistent bool              `json:"consistent"`
	Tables     []TableDifference `json:"tables,omitempty"`
	Links      []LinkDifference  `json:"links,omitempty"`
}

// TableDifference lists how one table differs between local and remote.
type TableDifference struct {
	Table      string          `json:"table"`
	OnlyLocal  []string        `json:"only_local,omitempty"`
	OnlyRemote []string        `json:"only_remote,omitempty"`
	Changed    []RowDifference `json:"changed,omitempty"`
}

// RowDifference is one column that holds different values on each side.
// Patch is a diff-match-patch patch turning the local text into the remote.
type RowDifference struct {
	ID     string `json:"id"`
	Column string `json:"column"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
	Patch  string `json:"patch,omitempty"`
}

// LinkDifference lists pairs present on one side only.
type LinkDifference struct {
	Link       string            `json:"link"`
	OnlyLocal  []models.LinkPair `json:"only_local,omitempty"`
	OnlyRemote []models.LinkPair `json:"only_remote,omitempty"`
}

// Verify compares the local library with the server's dump.
func (c *Client) Verify(ctx context.Context) (*VerifyReport, error) {
	remote, err := c.Dump(ctx)
	if err != nil {
		return nil, err
	}
	local, err := c.store.Snapshot(ctx)
	if err != nil {
		return nil, newSyncError(StageExporting, KindLocal, err)
	}

	report := Compare(local, remote)
	if !report.Consistent {
		logger.Info("Local library differs from server",
			"tables", len(report.Tables),
			"links", len(report.Links),
		)
	}
	return report, nil
}

// Compare reports every row, column and pair that differs between two
// snapshots.
func Compare(local, remote *models.Snapshot) *VerifyReport {
	dmp := diffmatchpatch.New()
	report := &VerifyReport{}

	for _, name := range unionKeys(local.Tables, remote.Tables) {
		lrows := indexRows(local.Tables[name])
		rrows := indexRows(remote.Tables[name])
		td := TableDifference{Table: name}

		for _, id := range unionKeys(lrows, rrows) {
			lrow, inLocal := lrows[id]
			rrow, inRemote := rrows[id]
			switch {
			case !inRemote:
				td.OnlyLocal = append(td.OnlyLocal, id)
			case !inLocal:
				td.OnlyRemote = append(td.OnlyRemote, id)
			default:
				for _, col := range unionKeys(lrow, rrow) {
					lv, rv := formatValue(lrow[col]), formatValue(rrow[col])
					if lv == rv {
						continue
					}
					rd := RowDifference{ID: id, Column: col, Local: lv, Remote: rv}
					rd.Patch = dmp.PatchToText(dmp.PatchMake(lv, rv))
					td.Changed = append(td.Changed, rd)
				}
			}
		}
		if len(td.OnlyLocal)+len(td.OnlyRemote)+len(td.Changed) > 0 {
			report.Tables = append(report.Tables, td)
		}
	}

	for _, name := range unionKeys(local.Links, remote.Links) {
		lpairs := pairSet(local.Links[name])
		rpairs := pairSet(remote.Links[name])
		ld := LinkDifference{Link: name}
		for p := range lpairs {
			if !rpairs[p] {
				ld.OnlyLocal = append(ld.OnlyLocal, p)
			}
		}
		for p := range rpairs {
			if !lpairs[p] {
				ld.OnlyRemote = append(ld.OnlyRemote, p)
			}
		}
		if len(ld.OnlyLocal)+len(ld.OnlyRemote) > 0 {
			sortPairs(ld.OnlyLocal)
			sortPairs(ld.OnlyRemote)
			report.Links = append(report.Links, ld)
		}
	}

	report.Consistent = len(report.Tables) == 0 && len(report.Links) == 0
	return report
}

func indexRows(tr *models.TableRows) map[string]models.Row {
	out := map[string]models.Row{}
	if tr == nil {
		return out
	}
	for _, values := range tr.Rows {
		row := models.RowAt(tr.Columns, values)
		out[row.ID()] = row
	}
	return out
}

func pairSet(pairs []models.LinkPair) map[models.LinkPair]bool {
	out := make(map[models.LinkPair]bool, len(pairs))
	for _, p := range pairs {
		out[p] = true
	}
	return out
}

func sortPairs(pairs []models.LinkPair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func unionKeys[A, B any](a map[string]A, b map[string]B) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	return sortedKeys(seen)
}
