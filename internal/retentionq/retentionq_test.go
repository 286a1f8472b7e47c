package retentionq_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/notyesbut/shardregistry/internal/retentionq"
)

func TestDueAsOfDrainsOnlyDaysAtOrBeforeToday(t *testing.T) {
	q := retentionq.NewRetentionQueue()
	now := time.Now()

	q.Add(now.Add(-48*time.Hour), "past-1")
	q.Add(now, "today-1")
	q.Add(now.Add(48*time.Hour), "future-1")

	due := q.DueAsOf(now)
	assert.ElementsMatch(t, []string{"past-1", "today-1"}, due)

	stillDue := q.DueAsOf(now)
	assert.Empty(t, stillDue, "a drained day must not be returned again")

	futureDue := q.DueAsOf(now.Add(48 * time.Hour))
	assert.Equal(t, []string{"future-1"}, futureDue)
}

func TestAddWithZeroTimeNeverSchedules(t *testing.T) {
	q := retentionq.NewRetentionQueue()
	q.Add(time.Time{}, "permanent-1")
	due := q.DueAsOf(time.Now().Add(365 * 24 * time.Hour))
	assert.Empty(t, due, "a zero expiration must never be scheduled")
}

func TestRemoveDropsIDBeforeItBecomesDue(t *testing.T) {
	q := retentionq.NewRetentionQueue()
	now := time.Now()
	q.Add(now, "r1")
	q.Add(now, "r2")

	q.Remove("r1")

	due := q.DueAsOf(now)
	assert.Equal(t, []string{"r2"}, due)
}

func TestRemoveOnUnknownIDIsANoop(t *testing.T) {
	q := retentionq.NewRetentionQueue()
	q.Remove("never-added")
	due := q.DueAsOf(time.Now())
	assert.Empty(t, due)
}
