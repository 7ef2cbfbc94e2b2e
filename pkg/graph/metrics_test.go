package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortCategoriesByCentrality(t *testing.T) {
	cats := []CategoryMetrics{
		{ID: "a", CodeDegree: 3, FragmentDegree: 10},
		{ID: "b", PageRank: 0.4, GDSDegree: 2, CodeDegree: 1},
		{ID: "c", PageRank: 0.4, GDSDegree: 5, CodeDegree: 1},
		{ID: "d", PageRank: 0.9, CodeDegree: 1},
	}

	sortCategories(cats)

	var order []string
	for _, c := range cats {
		order = append(order, c.ID)
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, order)
}

func TestSortCategoriesFallsBackToDegrees(t *testing.T) {
	// Without the algorithm extension every PageRank is zero and plain
	// code/fragment degrees decide the order.
	cats := []CategoryMetrics{
		{ID: "low", CodeDegree: 2, FragmentDegree: 1},
		{ID: "high", CodeDegree: 2, FragmentDegree: 9},
		{ID: "top", CodeDegree: 5, FragmentDegree: 1},
	}

	sortCategories(cats)

	assert.Equal(t, "top", cats[0].ID)
	assert.Equal(t, "high", cats[1].ID)
	assert.Equal(t, "low", cats[2].ID)
}

func TestRecordValueCoercion(t *testing.T) {
	assert.Equal(t, 7, intValue(int64(7)))
	assert.Equal(t, 7, intValue(float64(7)))
	assert.Zero(t, intValue(nil))

	assert.Equal(t, 1.5, floatValue(1.5))
	assert.Equal(t, 3.0, floatValue(int64(3)))
	assert.Zero(t, floatValue("x"))

	assert.Equal(t, "name", stringValue("name"))
	assert.Empty(t, stringValue(nil))
}
