package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrkportal/sheetengine/internal/core"
	"github.com/wrkportal/sheetengine/internal/store"
)

// setupChain builds a -(join)-> m1 -(union with c)-> m2.
func setupChain(t *testing.T) (*core.Service, core.Store) {
	t.Helper()
	st := store.NewMemory()
	svc := core.NewService(st, core.Options{CascadeParallel: 2})
	ctx := context.Background()

	register(t, svc, "a", []string{"ID", "Amount"}, []any{"1", "10"}, []any{"2", "20"})
	register(t, svc, "b", []string{"ID", "Region"}, []any{"1", "North"}, []any{"2", "South"})
	register(t, svc, "c", []string{"ID", "Amount", "Region"}, []any{"3", "30", "East"})

	res, err := svc.CreateMerge(ctx, core.MergeSpec{
		DerivedID: "m1", Name: "Joined", Kind: core.MergeJoin, JoinKey: "ID",
		Sources: []core.MergeSource{{SourceID: "a"}, {SourceID: "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, core.JoinInner, res.Spec.JoinType)
	assert.Equal(t, []string{"ID", "Amount"}, res.Spec.Sources[0].Headers, "source headers are recorded")
	assert.Nil(t, res.Cascade)

	_, err = svc.CreateMerge(ctx, core.MergeSpec{
		DerivedID: "m2", Name: "All", Kind: core.MergeUnion,
		Sources: []core.MergeSource{{SourceID: "m1"}, {SourceID: "c"}},
	})
	require.NoError(t, err)
	return svc, st
}

func TestCascade_RecomputesInTierOrder(t *testing.T) {
	svc, st := setupChain(t)
	ctx := context.Background()

	_, err := svc.AddCalculatedField(ctx, "m2", "Double", "MULTIPLY(Amount, 2)")
	require.NoError(t, err)

	result, err := svc.UpdateSource(ctx, "a", []string{"ID", "Amount"}, [][]any{
		{"1", "100"}, {"2", "200"}, {"4", "400"},
	})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "m1", result.Outcomes[0].DerivedID)
	assert.Equal(t, 0, result.Outcomes[0].Tier)
	assert.Equal(t, "m2", result.Outcomes[1].DerivedID)
	assert.Equal(t, 1, result.Outcomes[1].Tier)
	assert.Equal(t, []string{"m1", "m2"}, result.Succeeded())
	assert.Empty(t, result.Failed())

	m1, err := st.GetSource(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"1", "100", "North"}, {"2", "200", "South"}}, m1.Rows)

	opened, err := svc.OpenTable(ctx, "m2")
	require.NoError(t, err)
	assert.Empty(t, opened.Issues)
	require.Len(t, opened.Data.Rows, 3)
	assert.Equal(t, 200.0, opened.Data.Rows[0][3], "calculated fields are replayed on new data")
	assert.Equal(t, 60.0, opened.Data.Rows[2][3])
}

func TestCascade_HeaderMismatchLeavesDependentsUntouched(t *testing.T) {
	svc, st := setupChain(t)
	ctx := context.Background()

	before, err := st.GetSource(ctx, "m1")
	require.NoError(t, err)

	result, err := svc.UpdateSource(ctx, "a", []string{"ID", "Total"}, [][]any{{"1", "5"}})
	require.NoError(t, err)

	o, ok := result.Outcome("m1")
	require.True(t, ok)
	assert.Equal(t, core.StatusHeaderMismatch, o.Status)
	require.NotNil(t, o.Mismatch)
	assert.Equal(t, []string{"Amount"}, o.Mismatch.Removed)
	assert.Equal(t, []string{"Total"}, o.Mismatch.Added)
	assert.Contains(t, o.Error, "header mismatch")

	o, ok = result.Outcome("m2")
	require.True(t, ok)
	assert.Equal(t, core.StatusSkipped, o.Status)
	assert.Empty(t, result.Succeeded())

	after, err := st.GetSource(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, before.Rows, after.Rows)
	assert.Equal(t, before.Columns, after.Columns)

	raw, err := st.GetSource(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Total"}, raw.Columns, "the source itself is always updated")
}

func TestCascade_SiblingUpdateRechecksEarlierMismatch(t *testing.T) {
	svc, st := setupChain(t)
	ctx := context.Background()

	before, err := st.GetSource(ctx, "m1")
	require.NoError(t, err)

	result, err := svc.UpdateSource(ctx, "a", []string{"ID", "Total"}, [][]any{{"1", "5"}})
	require.NoError(t, err)
	o, ok := result.Outcome("m1")
	require.True(t, ok)
	require.Equal(t, core.StatusHeaderMismatch, o.Status)

	// b keeps its headers, but a still does not match what m1 recorded.
	result, err = svc.UpdateSource(ctx, "b", []string{"ID", "Region"}, [][]any{{"1", "West"}})
	require.NoError(t, err)

	o, ok = result.Outcome("m1")
	require.True(t, ok)
	assert.Equal(t, core.StatusHeaderMismatch, o.Status)
	require.NotNil(t, o.Mismatch)
	assert.Equal(t, "a", o.Mismatch.SourceID)
	assert.Equal(t, []string{"Amount"}, o.Mismatch.Removed)

	o, ok = result.Outcome("m2")
	require.True(t, ok)
	assert.Equal(t, core.StatusSkipped, o.Status)
	assert.Empty(t, result.Succeeded())

	after, err := st.GetSource(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, before.Columns, after.Columns)
	assert.Equal(t, before.Rows, after.Rows)
}

func TestCascade_IndependentBranchesContinue(t *testing.T) {
	svc, _ := setupChain(t)
	ctx := context.Background()

	register(t, svc, "d", []string{"ID", "Amount"}, []any{"9", "90"})
	_, err := svc.CreateMerge(ctx, core.MergeSpec{
		DerivedID: "m3", Kind: core.MergeUnion,
		Sources: []core.MergeSource{{SourceID: "c"}, {SourceID: "m2"}},
	})
	require.NoError(t, err)
	_, err = svc.CreateMerge(ctx, core.MergeSpec{
		DerivedID: "m4", Kind: core.MergeUnion,
		Sources: []core.MergeSource{{SourceID: "d"}, {SourceID: "a"}},
	})
	require.NoError(t, err)

	result, err := svc.UpdateSource(ctx, "a", []string{"ID", "Total"}, [][]any{{"1", "5"}})
	require.NoError(t, err)

	statuses := map[string]core.CascadeStatus{}
	for _, o := range result.Outcomes {
		statuses[o.DerivedID] = o.Status
	}
	assert.Equal(t, map[string]core.CascadeStatus{
		"m1": core.StatusHeaderMismatch,
		"m2": core.StatusSkipped,
		"m3": core.StatusSkipped,
		"m4": core.StatusHeaderMismatch,
	}, statuses)

	result, err = svc.UpdateSource(ctx, "c", []string{"ID", "Amount", "Region"}, [][]any{{"7", "70", "West"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, result.Succeeded(), "a mismatch elsewhere does not block other sources")
}

func TestCreateMerge_RejectsCycles(t *testing.T) {
	svc, _ := setupChain(t)
	ctx := context.Background()

	_, err := svc.CreateMerge(ctx, core.MergeSpec{
		DerivedID: "m1", Kind: core.MergeUnion,
		Sources: []core.MergeSource{{SourceID: "m2"}, {SourceID: "c"}},
	})
	var ce *core.CycleError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Contains(t, err.Error(), "dependency cycle detected")

	_, err = svc.CreateMerge(ctx, core.MergeSpec{
		DerivedID: "a", Kind: core.MergeUnion,
		Sources: []core.MergeSource{{SourceID: "b"}, {SourceID: "c"}},
	})
	var conflict *core.ConflictError
	assert.True(t, errors.As(err, &conflict), "raw tables cannot be redefined as merges")

	_, err = svc.CreateMerge(ctx, core.MergeSpec{
		Kind:    core.MergeUnion,
		Sources: []core.MergeSource{{SourceID: "a"}, {SourceID: "ghost"}},
	})
	var nf *core.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestCreateMerge_RedefineCascades(t *testing.T) {
	svc, st := setupChain(t)
	ctx := context.Background()

	res, err := svc.CreateMerge(ctx, core.MergeSpec{
		DerivedID: "m1", Name: "Left joined", Kind: core.MergeJoin, JoinKey: "ID", JoinType: core.JoinLeft,
		Sources: []core.MergeSource{{SourceID: "a"}, {SourceID: "b"}},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Cascade)
	assert.Equal(t, []string{"m2"}, res.Cascade.Succeeded())

	specs, err := st.ListMerges(ctx)
	require.NoError(t, err)
	assert.Len(t, specs, 2)
}

func TestUpdateSource_Rules(t *testing.T) {
	svc, _ := setupChain(t)
	ctx := context.Background()

	_, err := svc.UpdateSource(ctx, "m1", []string{"ID"}, nil)
	assert.ErrorContains(t, err, "merged table")

	_, err = svc.UpdateSource(ctx, "a", []string{"ID", "ID"}, nil)
	assert.ErrorContains(t, err, "invalid table")

	_, err = svc.UpdateSource(ctx, "nope", []string{"ID"}, nil)
	var nf *core.NotFoundError
	assert.True(t, errors.As(err, &nf))

	infos, err := svc.ListSources(ctx)
	require.NoError(t, err)
	derived := map[string]bool{}
	for _, info := range infos {
		derived[info.ID] = info.Derived
	}
	assert.Equal(t, map[string]bool{"a": false, "b": false, "c": false, "m1": true, "m2": true}, derived)
}

func TestService_WaitForCascades(t *testing.T) {
	svc, _ := setupChain(t)
	require.NoError(t, svc.WaitForCascades(context.Background()))
	assert.Equal(t, 0, svc.CascadeStatus().Active)
}
