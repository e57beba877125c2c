package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsFold(t *testing.T) {
	assert.True(t, ContainsFold("Информатика и вычислительная техника", "ВЫЧИСЛ"))
	assert.True(t, ContainsFold("Ёлочная группа", "елоч"))
	assert.True(t, ContainsFold("Café", "cafe"))
	assert.False(t, ContainsFold("ПИ-21", "ИВТ"))
	assert.True(t, ContainsFold("anything", ""))
}

func TestCompareIgnoresCase(t *testing.T) {
	assert.Equal(t, 0, Compare("физика", "ФИЗИКА"))
	assert.Negative(t, Compare("Алгебра", "Биология"))
	assert.Positive(t, Compare("Яхты", "астрономия"))
}
