package domain

import "testing"

func TestNextListPositionEmpty(t *testing.T) {
	if got := NextListPosition(nil); got != 1 {
		t.Fatalf("expected 1 for empty board, got %d", got)
	}
}

func TestNextListPositionAppends(t *testing.T) {
	lists := []List{{ID: "l1", Position: 1}, {ID: "l2", Position: 2}}
	if got := NextListPosition(lists); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestNextListPositionIgnoresGaps(t *testing.T) {
	lists := []List{{ID: "l1", Position: 2}, {ID: "l2", Position: 7}}
	if got := NextListPosition(lists); got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}
}

func TestNextTaskPositionEmpty(t *testing.T) {
	if got := NextTaskPosition(nil); got != 1 {
		t.Fatalf("expected 1 for empty list, got %d", got)
	}
}

func TestPositionForIndex(t *testing.T) {
	if got := PositionForIndex(0); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := PositionForIndex(4); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestSortListsTieBreaksByCreation(t *testing.T) {
	lists := []List{
		{ID: "b", Position: 2, CreatedAt: 20},
		{ID: "a", Position: 2, CreatedAt: 10},
		{ID: "c", Position: 1, CreatedAt: 30},
	}
	SortLists(lists)
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if lists[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, lists[i].ID)
		}
	}
}

func TestSortTasksOrdersWithinList(t *testing.T) {
	tasks := []Task{
		{ID: "t2", ListID: "a", Position: 2},
		{ID: "t1", ListID: "a", Position: 1},
		{ID: "t3", ListID: "b", Position: 1},
	}
	SortTasks(tasks)
	inA := TasksInList(tasks, "a")
	if len(inA) != 2 || inA[0].ID != "t1" || inA[1].ID != "t2" {
		t.Fatalf("unexpected order in list a: %+v", inA)
	}
}

func TestSortActivitiesNewestFirst(t *testing.T) {
	records := []Activity{
		{ID: "old", CreatedAt: 10},
		{ID: "new", CreatedAt: 30},
		{ID: "mid", CreatedAt: 20},
	}
	SortActivitiesNewestFirst(records)
	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if records[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, records[i].ID)
		}
	}
}
