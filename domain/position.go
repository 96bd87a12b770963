package domain

import "sort"

// Positions are plain integers. Appending allocates max+1, reordering stores
// the target index plus one. Gaps left behind by moves are harmless because
// ordering only compares relative values, and concurrent reorders may collide;
// the last write wins and SortLists/SortTasks resolve ties by creation order.

// NextListPosition returns the position for a list appended to a board.
func NextListPosition(siblings []List) int {
	max := 0
	for _, l := range siblings {
		if l.Position > max {
			max = l.Position
		}
	}
	return max + 1
}

// NextTaskPosition returns the position for a task appended to a list.
func NextTaskPosition(siblings []Task) int {
	max := 0
	for _, t := range siblings {
		if t.Position > max {
			max = t.Position
		}
	}
	return max + 1
}

// PositionForIndex converts a zero-based display index into a stored position.
func PositionForIndex(idx int) int {
	return idx + 1
}

// SortLists orders lists for display.
func SortLists(lists []List) {
	sort.SliceStable(lists, func(i, j int) bool {
		if lists[i].Position != lists[j].Position {
			return lists[i].Position < lists[j].Position
		}
		if lists[i].CreatedAt != lists[j].CreatedAt {
			return lists[i].CreatedAt < lists[j].CreatedAt
		}
		return lists[i].ID < lists[j].ID
	})
}

// SortTasks orders tasks for display within their lists.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Position != tasks[j].Position {
			return tasks[i].Position < tasks[j].Position
		}
		if tasks[i].CreatedAt != tasks[j].CreatedAt {
			return tasks[i].CreatedAt < tasks[j].CreatedAt
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// SortActivitiesNewestFirst orders activity records reverse-chronologically.
func SortActivitiesNewestFirst(records []Activity) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt > records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})
}

// TasksInList filters tasks belonging to one list, preserving order.
func TasksInList(tasks []Task, listID string) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ListID == listID {
			out = append(out, t)
		}
	}
	return out
}
