package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/camlf/academic-hub/internal/testutil"
	"github.com/camlf/academic-hub/pkg/query"
	"github.com/camlf/academic-hub/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceRow struct {
	source string
	ts     time.Time
}

func sourceRows(tbl *table.Table) []sourceRow {
	out := make([]sourceRow, 0, tbl.Len())
	for _, row := range tbl.Rows {
		id, _ := row[table.SourceID].(string)
		out = append(out, sourceRow{source: id, ts: row.Timestamp()})
	}
	return out
}

func TestBatchFetcher_FetchAll_MergesAndSorts(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	exec.Script("S1", testutil.PageStep("", testutil.At(1), testutil.At(3)))
	exec.Script("S2", testutil.PageStep("", testutil.At(2)))

	bf := NewBatchFetcher(NewPaginator(exec, testConfig()), WithWorkers(2))
	res, err := bf.FetchAll(context.Background(), []FetchRequest{
		interpolatedRequest("S1"),
		interpolatedRequest("S2"),
	})
	require.NoError(t, err)

	assert.Equal(t, []sourceRow{
		{"S1", testutil.At(1)},
		{"S1", testutil.At(3)},
		{"S2", testutil.At(2)},
	}, sourceRows(res.Table))
	assert.True(t, res.Table.HasColumn(table.SourceID))
	assert.Empty(t, res.Resume)
	assert.Empty(t, res.NoStoredVersion)
}

func TestBatchFetcher_FetchAll_SortIsStable(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	dup := testutil.PageStep("", testutil.At(1), testutil.At(1))
	dup.Page.Rows[0]["Value"] = 10.0
	dup.Page.Rows[1]["Value"] = 20.0
	exec.Script("S1", dup)

	res, err := NewBatchFetcher(NewPaginator(exec, testConfig())).FetchAll(context.Background(), []FetchRequest{
		interpolatedRequest("S1"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Table.Len())
	assert.Equal(t, 10.0, res.Table.Rows[0]["Value"])
	assert.Equal(t, 20.0, res.Table.Rows[1]["Value"])
}

func TestBatchFetcher_FetchAll_AllOrNothing(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	exec.Script("A", testutil.PageStep("", testutil.At(0)))
	exec.Script("B", testutil.ErrStep(http.StatusForbidden))
	exec.Script("C", testutil.PageStep("", testutil.At(1)))

	res, err := NewBatchFetcher(NewPaginator(exec, testConfig())).FetchAll(context.Background(), []FetchRequest{
		interpolatedRequest("A"),
		interpolatedRequest("B"),
		interpolatedRequest("C"),
	})
	assert.Nil(t, res)

	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "B", srcErr.SourceID)

	var se *query.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}

func TestBatchFetcher_FetchAll_SkipsUnstartedSources(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	exec.Script("A", testutil.ErrStep(http.StatusInternalServerError))
	exec.Script("B", testutil.PageStep("", testutil.At(0)))
	exec.Script("C", testutil.PageStep("", testutil.At(1)))

	_, err := NewBatchFetcher(NewPaginator(exec, testConfig()), WithWorkers(1)).FetchAll(context.Background(), []FetchRequest{
		interpolatedRequest("A"),
		interpolatedRequest("B"),
		interpolatedRequest("C"),
	})
	require.Error(t, err)

	// Give a stray submission time to show up.
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, exec.CallsFor("A"), 1)
	assert.Empty(t, exec.CallsFor("B"))
	assert.Empty(t, exec.CallsFor("C"))
}

func TestBatchFetcher_FetchAll_DoesNotWaitForSiblings(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	exec.Script("slow", testutil.Step{Block: true})
	exec.Script("bad", testutil.Step{
		Delay: 5 * time.Millisecond,
		Err:   query.NewStatusError(http.StatusInternalServerError),
	})

	start := time.Now()
	_, err := NewBatchFetcher(NewPaginator(exec, testConfig()), WithWorkers(2)).FetchAll(context.Background(), []FetchRequest{
		interpolatedRequest("slow"),
		interpolatedRequest("bad"),
	})

	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "bad", srcErr.SourceID)
	assert.NotErrorIs(t, err, ErrContextCancelled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBatchFetcher_FetchAll_RespectsWorkerLimit(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	var reqs []FetchRequest
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("S%d", i)
		step := testutil.PageStep("", testutil.At(i))
		step.Delay = 10 * time.Millisecond
		exec.Script(id, step)
		reqs = append(reqs, interpolatedRequest(id))
	}

	res, err := NewBatchFetcher(NewPaginator(exec, testConfig()), WithWorkers(2)).FetchAll(context.Background(), reqs)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Table.Len())
	assert.LessOrEqual(t, exec.MaxInFlight(), 2)
}

func TestBatchFetcher_FetchAll_StoredOutcomes(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	exec.Script("missing", testutil.ErrStep(http.StatusNotFound))
	exec.Script("large",
		testutil.PageStep("c1", testutil.At(0), testutil.At(1)),
	)
	exec.Script("small", testutil.PageStep("", testutil.At(2)))

	cfg := testConfig()
	cfg.MaxStoredRows = 2
	res, err := NewBatchFetcher(NewPaginator(exec, cfg)).FetchAll(context.Background(), []FetchRequest{
		storedRequest("missing"),
		storedRequest("large"),
		storedRequest("small"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"missing"}, res.NoStoredVersion)
	require.Contains(t, res.Resume, "large")
	assert.Equal(t, query.Cursor("c1"), res.Resume["large"].Cursor)
	assert.Equal(t, []sourceRow{
		{"large", testutil.At(0)},
		{"large", testutil.At(1)},
		{"small", testutil.At(2)},
	}, sourceRows(res.Table))
}

func TestBatchFetcher_FetchAll_ValidatesFirst(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	exec.Script("ok", testutil.PageStep("", testutil.At(0)))

	bad := interpolatedRequest("bad")
	bad.StartIndex = "nope"

	_, err := NewBatchFetcher(NewPaginator(exec, testConfig())).FetchAll(context.Background(), []FetchRequest{
		interpolatedRequest("ok"),
		bad,
	})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, exec.Calls())

	_, err = NewBatchFetcher(NewPaginator(exec, testConfig())).FetchAll(context.Background(), []FetchRequest{
		interpolatedRequest("ok"),
		interpolatedRequest("ok"),
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "source id", ve.Field)
}

func TestBatchFetcher_FetchAll_Empty(t *testing.T) {
	res, err := NewBatchFetcher(NewPaginator(testutil.NewScriptedExecutor(), testConfig())).FetchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Table.Len())
	assert.Equal(t, []string{table.Timestamp, table.SourceID}, res.Table.Columns)
}

func TestBatchFetcher_FetchAll_SourceIDColumnLast(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	exec.Script("S1", testutil.PageStep("", testutil.At(1)))
	exec.Script("S2", testutil.PageStep("", testutil.At(2)))

	res, err := NewBatchFetcher(NewPaginator(exec, testConfig())).FetchAll(context.Background(), []FetchRequest{
		interpolatedRequest("S1"),
		interpolatedRequest("S2"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{table.Timestamp, "Value", table.SourceID}, res.Table.Columns)
}

func TestBatchFetcher_FetchAll_ContextCancelled(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	exec.Script("A", testutil.Step{Block: true})
	exec.Script("B", testutil.Step{Block: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewBatchFetcher(NewPaginator(exec, testConfig())).FetchAll(ctx, []FetchRequest{
		interpolatedRequest("A"),
		interpolatedRequest("B"),
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBatchFetcher_SkipSort(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	exec.Script("S1", testutil.PageStep("", testutil.At(3), testutil.At(1)))

	res, err := NewBatchFetcher(NewPaginator(exec, testConfig()), WithSkipSort()).FetchAll(context.Background(), []FetchRequest{
		interpolatedRequest("S1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{testutil.At(3), testutil.At(1)}, timestamps(res.Table))
}

func TestPaginator_FetchMany(t *testing.T) {
	exec := testutil.NewScriptedExecutor()
	exec.Script("S2", testutil.PageStep("", testutil.At(2)))
	exec.Script("S1", testutil.PageStep("", testutil.At(1), testutil.At(3)))

	tbl, err := NewPaginator(exec, testConfig()).FetchMany(context.Background(), []FetchRequest{
		interpolatedRequest("S2"),
		interpolatedRequest("S1"),
	}, 2)
	require.NoError(t, err)

	assert.Equal(t, []sourceRow{
		{"S1", testutil.At(1)},
		{"S1", testutil.At(3)},
		{"S2", testutil.At(2)},
	}, sourceRows(tbl))
}
