package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperture-cli/aperture/aperr"
)

func TestExecutionOrderNoDependencies(t *testing.T) {
	ops := []Operation{
		{Args: []string{"a"}},
		{Args: []string{"b"}},
		{Args: []string{"c"}},
	}
	order, err := ResolveExecutionOrder(ops)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestExecutionOrderExplicitDeps(t *testing.T) {
	ops := []Operation{
		{ID: "get", Args: []string{"users", "get"}, DependsOn: []string{"create"}},
		{ID: "create", Args: []string{"users", "create"}, Capture: map[string]string{"uid": ".id"}},
	}
	order, err := ResolveExecutionOrder(ops)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, order)
}

func TestExecutionOrderImplicitEdgesFromInterpolation(t *testing.T) {
	ops := []Operation{
		{Args: []string{"users", "get", "--id", "{{uid}}"}},
		{ID: "create", Args: []string{"users", "create"}, Capture: map[string]string{"uid": ".id"}},
	}
	order, err := ResolveExecutionOrder(ops)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, order)
}

func TestExecutionOrderAppendProducersPrecedeConsumer(t *testing.T) {
	ops := []Operation{
		{Args: []string{"groups", "add", "--body", `{"ids": {{event_ids}}}`}},
		{ID: "p1", Args: []string{"a"}, CaptureAppend: map[string]string{"event_ids": ".id"}},
		{ID: "p2", Args: []string{"b"}, CaptureAppend: map[string]string{"event_ids": ".id"}},
	}
	order, err := ResolveExecutionOrder(ops)
	require.NoError(t, err)
	// Both producers run before the consumer, in input order.
	assert.Equal(t, []int{1, 2, 0}, order)
}

func TestExecutionOrderStableTieBreaks(t *testing.T) {
	ops := []Operation{
		{ID: "root", Args: []string{"r"}, Capture: map[string]string{"v": ".id"}},
		{ID: "c2", Args: []string{"{{v}}"}},
		{ID: "c1", Args: []string{"{{v}}"}},
	}
	order, err := ResolveExecutionOrder(ops)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestExecutionOrderMissingID(t *testing.T) {
	ops := []Operation{
		{Args: []string{"a"}, Capture: map[string]string{"x": ".id"}},
	}
	_, err := ResolveExecutionOrder(ops)
	require.Error(t, err)
	assert.Equal(t, aperr.Validation, aperr.KindOf(err))
	assert.Contains(t, err.Error(), "must declare an id")
}

func TestExecutionOrderDuplicateID(t *testing.T) {
	ops := []Operation{
		{ID: "same", Args: []string{"a"}},
		{ID: "same", Args: []string{"b"}},
	}
	_, err := ResolveExecutionOrder(ops)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestExecutionOrderMissingDependency(t *testing.T) {
	ops := []Operation{
		{ID: "a", Args: []string{"x"}, DependsOn: []string{"ghost"}},
	}
	_, err := ResolveExecutionOrder(ops)
	require.Error(t, err)
	assert.Equal(t, aperr.MissingDependency, aperr.KindOf(err))
	assert.Contains(t, err.Error(), "ghost")
}

func TestExecutionOrderCycleDetection(t *testing.T) {
	ops := []Operation{
		{ID: "a", Args: []string{"x"}, DependsOn: []string{"c"}},
		{ID: "b", Args: []string{"y"}, DependsOn: []string{"a"}},
		{ID: "c", Args: []string{"z"}, DependsOn: []string{"b"}},
	}
	_, err := ResolveExecutionOrder(ops)
	require.Error(t, err)
	assert.Equal(t, aperr.CycleDetected, aperr.KindOf(err))

	var e *aperr.Error
	require.ErrorAs(t, err, &e)
	cycle, ok := e.Details["cycle"].([]string)
	require.True(t, ok)
	// The cycle closes on its starting id.
	require.GreaterOrEqual(t, len(cycle), 4)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycle[:len(cycle)-1])
}

func TestExecutionOrderSelfReferenceNoEdge(t *testing.T) {
	// An operation consuming the variable it captures gets no self edge.
	ops := []Operation{
		{ID: "a", Args: []string{"{{v}}"}, Capture: map[string]string{"v": ".id"}},
	}
	order, err := ResolveExecutionOrder(ops)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, order)
}
