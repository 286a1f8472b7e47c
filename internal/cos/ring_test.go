package cos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessRingBoundedAtCapacity(t *testing.T) {
	r := NewAccessRing(3)
	for i := int64(1); i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int64{3, 4, 5}, r.Entries())
	assert.Equal(t, int64(5), r.Last())
}

func TestAccessRingCloneIsIndependent(t *testing.T) {
	r := NewAccessRing(2)
	r.Push(1)
	cp := r.Clone()
	r.Push(2)
	r.Push(3)
	assert.Equal(t, []int64{1}, cp.Entries())
	assert.Equal(t, []int64{2, 3}, r.Entries())
}

func TestAccessRingDefaultsCapacityWhenNonPositive(t *testing.T) {
	r := NewAccessRing(0)
	for i := int64(0); i < 150; i++ {
		r.Push(i)
	}
	assert.Equal(t, 100, r.Len())
}
