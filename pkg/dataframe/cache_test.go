package dataframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gridframe/pkg/errors"
)

func TestCellCacheTransitions(t *testing.T) {
	c := NewCellCache([]string{"A"})

	e, err := c.Get(0, "A")
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, e.State)

	require.NoError(t, c.Set(0, "A", Entry{State: StatePending}))
	assert.Error(t, c.Set(0, "A", Entry{State: StatePending}), "pending cannot be claimed twice")

	readErr := errors.New(errors.ErrorTypeUnderlyingRead, "boom")
	require.NoError(t, c.Set(0, "A", Entry{State: StateFailed, Err: readErr}))
	e, _ = c.Get(0, "A")
	assert.Equal(t, StateFailed, e.State)
	assert.Equal(t, readErr, e.Err)

	require.NoError(t, c.Set(0, "A", Entry{State: StatePending}), "failed cells may be retried")
	require.NoError(t, c.Set(0, "A", Entry{State: StateResolved, Value: Resolved(42)}))
	assert.Error(t, c.Set(0, "A", Entry{State: StatePending}), "resolved is terminal")
	assert.Error(t, c.Set(0, "A", Entry{State: StateFailed}), "resolved is terminal")

	e, _ = c.Get(0, "A")
	assert.Equal(t, Entry{State: StateResolved, Value: Resolved(42)}, e)

	_, err = c.Get(0, "B")
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownColumn))
	assert.True(t, errors.IsType(c.Set(0, "B", Entry{State: StatePending}), errors.ErrorTypeUnknownColumn))
}

func TestCellCacheFetchNeededAndRenderable(t *testing.T) {
	c := NewCellCache([]string{"A", "B"})
	cols := []string{"A", "B"}

	assert.True(t, c.IsFetchNeeded(0, cols))
	assert.False(t, c.IsRenderable(0, cols))

	require.NoError(t, c.SetRowNumber(0, Entry{State: StatePending}))
	require.NoError(t, c.Set(0, "A", Entry{State: StatePending}))
	assert.True(t, c.IsFetchNeeded(0, cols), "B is still absent")
	assert.False(t, c.IsFetchNeeded(0, []string{"A"}))

	require.NoError(t, c.Set(0, "B", Entry{State: StatePending}))
	assert.False(t, c.IsFetchNeeded(0, cols))
	assert.False(t, c.IsRenderable(0, cols))

	require.NoError(t, c.SetRowNumber(0, Entry{State: StateResolved, Value: Resolved(0)}))
	require.NoError(t, c.Set(0, "A", Entry{State: StateResolved, Value: Resolved("a")}))
	require.NoError(t, c.Set(0, "B", Entry{State: StateFailed}))
	assert.True(t, c.IsFetchNeeded(0, cols), "failed cells need a new fetch")
	assert.True(t, c.IsRenderable(0, []string{"A"}))
	assert.False(t, c.IsRenderable(0, cols))
}

func TestCellCacheClaimCoalesces(t *testing.T) {
	c := NewCellCache([]string{"A"})

	first, err := c.Claim(RowRange{Start: 3, End: 6}, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, []RowRange{{3, 6}}, first.Runs)

	second, err := c.Claim(RowRange{Start: 0, End: 10}, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, []RowRange{{0, 3}, {6, 10}}, second.Runs)
	assert.Equal(t, 14, second.Cells(), "7 row numbers and 7 cells")

	again, err := c.Claim(RowRange{Start: 0, End: 10}, []string{"A"})
	require.NoError(t, err)
	assert.True(t, again.Empty(), "everything is pending already")
}

func TestCellCacheClaimOnlyMissingColumns(t *testing.T) {
	c := NewCellCache([]string{"A", "B"})

	cl, err := c.Claim(RowRange{Start: 0, End: 4}, []string{"A"})
	require.NoError(t, err)
	c.Settle(cl, cl.Runs[0], rowsFor(0, 4, "A"))

	cl, err = c.Claim(RowRange{Start: 0, End: 4}, []string{"A", "B"})
	require.NoError(t, err)
	require.Equal(t, []RowRange{{0, 4}}, cl.Runs)
	assert.Equal(t, []string{"B"}, cl.Columns(cl.Runs[0]))
	assert.False(t, cl.Has(1, "A"))
	assert.True(t, cl.Has(1, "B"))
}

func TestCellCacheSettleShortRead(t *testing.T) {
	c := NewCellCache([]string{"A"})
	cl, err := c.Claim(RowRange{Start: 0, End: 5}, []string{"A"})
	require.NoError(t, err)

	res := c.Settle(cl, cl.Runs[0], rowsFor(0, 3, "A"))
	assert.Equal(t, SettleResult{Resolved: 3, Unavailable: 2}, res)

	e, _ := c.Get(2, "A")
	assert.Equal(t, Resolved("A-2"), e.Value)
	e, _ = c.Get(4, "A")
	assert.Equal(t, StateResolved, e.State)
	assert.True(t, e.Value.Unavailable)
	assert.True(t, c.GetRowNumber(4).Value.Unavailable)

	st := c.Stats()
	assert.Equal(t, uint64(0), st.Pending)
	assert.Equal(t, uint64(10), st.Resolved)
}

func TestCellCacheFailOnlyTouchesOwnClaim(t *testing.T) {
	c := NewCellCache([]string{"A", "B"})

	owner, err := c.Claim(RowRange{Start: 0, End: 2}, []string{"A"})
	require.NoError(t, err)
	other, err := c.Claim(RowRange{Start: 0, End: 2}, []string{"A", "B"})
	require.NoError(t, err)

	c.Fail(other, other.Runs[0], errors.New(errors.ErrorTypeUnderlyingRead, "boom"))

	e, _ := c.Get(0, "A")
	assert.Equal(t, StatePending, e.State, "A belongs to the first claim")
	e, _ = c.Get(0, "B")
	assert.Equal(t, StateFailed, e.State)

	c.Settle(owner, owner.Runs[0], rowsFor(0, 2, "A"))
	e, _ = c.Get(0, "A")
	assert.Equal(t, StateResolved, e.State)
}

func rowsFor(start, end int, cols ...string) []Row {
	rows := make([]Row, 0, end-start)
	for r := start; r < end; r++ {
		cells := make(map[string]interface{}, len(cols))
		for _, c := range cols {
			cells[c] = cellValue(c, r)
		}
		rows = append(rows, Row{SourceIndex: r, Cells: cells})
	}
	return rows
}

func TestCellCacheRejectsRowsBeyondMaxRows(t *testing.T) {
	c := NewCellCache([]string{"A"})

	_, err := c.Get(MaxRows, "A")
	assert.True(t, errors.IsType(err, errors.ErrorTypeOutOfRange), "got %v", err)
	err = c.Set(MaxRows+1, "A", Entry{State: StatePending})
	assert.True(t, errors.IsType(err, errors.ErrorTypeOutOfRange), "got %v", err)
	_, err = c.Claim(RowRange{Start: MaxRows - 2, End: MaxRows + 1}, []string{"A"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeOutOfRange), "got %v", err)
	assert.True(t, c.IsFetchNeeded(MaxRows, []string{"A"}))
	assert.False(t, c.IsRenderable(MaxRows, []string{"A"}))

	cl, err := c.Claim(RowRange{Start: 1, End: 2}, []string{"A"})
	require.NoError(t, err)
	assert.True(t, cl.Has(1, "A"))
	assert.False(t, cl.Has(MaxRows+1, "A"), "rows past the limit do not alias low rows")

	e, err := c.Get(MaxRows-1, "A")
	require.NoError(t, err)
	assert.Equal(t, StateAbsent, e.State)
}
