package team

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCheckInvariants(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := sampleState()
		s.WorkQueue = []WorkItem{NewWorkItem("w2", "t", "d", 1, "cto")}
		done := NewWorkItem("w3", "t", "d", 1, "cto")
		done.Status = StatusCompleted
		s.CompletedWork = []WorkItem{done}
		assert.NoError(t, CheckInvariants(s))
	})

	t.Run("duplicate across queues", func(t *testing.T) {
		s := sampleState()
		dup := s.EvaluationQueue[0].Clone()
		dup.Status = StatusCompleted
		s.CompletedWork = []WorkItem{dup}
		err := CheckInvariants(s)
		var inv *InvariantError
		require.True(t, errors.As(err, &inv))
		assert.Contains(t, inv.Error(), "present in evaluation_queue and completed_work")
	})

	t.Run("status disagrees with queue", func(t *testing.T) {
		s := sampleState()
		w := NewWorkItem("w9", "t", "d", 1, "cto")
		w.Status = StatusCompleted
		s.WorkQueue = []WorkItem{w}
		assert.Error(t, CheckInvariants(s))
	})

	t.Run("loop bounds", func(t *testing.T) {
		s := sampleState()
		s.EvaluationQueue[0].EvaluationLoop.LoopCount = 4
		s.EvaluationQueue[0].EvaluationLoop.EscalationCount = -1
		var inv *InvariantError
		require.True(t, errors.As(CheckInvariants(s), &inv))
		assert.Len(t, inv.Violations, 2)
	})
}

func TestRemoveByID_PreservesOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		items := make([]WorkItem, n)
		for i := range items {
			items[i] = NewWorkItem(string(rune('a'+i)), "t", "d", i, "cto")
		}
		var drop []string
		for _, w := range items {
			if rapid.Bool().Draw(t, "drop_"+w.ID) {
				drop = append(drop, w.ID)
			}
		}
		out := RemoveByID(items, drop...)
		if out == nil {
			t.Fatalf("RemoveByID returned nil")
		}
		if len(out)+len(drop) != n {
			t.Fatalf("expected %d items, got %d", n-len(drop), len(out))
		}
		last := -1
		for _, w := range out {
			i := IndexByID(items, w.ID)
			if i <= last {
				t.Fatalf("order not preserved")
			}
			last = i
		}
	})
}

func TestReplaceByID(t *testing.T) {
	items := []WorkItem{NewWorkItem("a", "A", "", 1, "cto"), NewWorkItem("b", "B", "", 2, "cto")}
	upd := items[1]
	upd.Status = StatusAssigned
	out, ok := ReplaceByID(items, upd)
	assert.True(t, ok)
	assert.Equal(t, StatusAssigned, out[1].Status)
	assert.Equal(t, StatusPending, items[1].Status)

	_, ok = ReplaceByID(items, NewWorkItem("z", "", "", 0, ""))
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, IDs(items))
}
