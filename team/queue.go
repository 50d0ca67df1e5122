package team

// CloneItems returns a deep copy of items. The result is never nil, so it
// can be handed to a Delta as a replacement even when empty.
func CloneItems(items []WorkItem) []WorkItem {
	out := make([]WorkItem, len(items))
	for i, w := range items {
		out[i] = w.Clone()
	}
	return out
}

// IndexByID returns the position of the item with the given id, or -1.
func IndexByID(items []WorkItem, id string) int {
	for i, w := range items {
		if w.ID == id {
			return i
		}
	}
	return -1
}

// RemoveByID returns items without any entry whose id is in ids. Order is
// preserved and the result is never nil.
func RemoveByID(items []WorkItem, ids ...string) []WorkItem {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make([]WorkItem, 0, len(items))
	for _, w := range items {
		if _, ok := drop[w.ID]; ok {
			continue
		}
		out = append(out, w)
	}
	return out
}

// ReplaceByID returns items with the entry matching item.ID replaced in
// place. It reports false when no entry matched.
func ReplaceByID(items []WorkItem, item WorkItem) ([]WorkItem, bool) {
	out := make([]WorkItem, len(items))
	copy(out, items)
	i := IndexByID(out, item.ID)
	if i < 0 {
		return out, false
	}
	out[i] = item
	return out, true
}

// Append returns a new slice with items appended to queue.
func Append(queue []WorkItem, items ...WorkItem) []WorkItem {
	out := make([]WorkItem, 0, len(queue)+len(items))
	out = append(out, queue...)
	return append(out, items...)
}

// IDs returns the ids of items in order.
func IDs(items []WorkItem) []string {
	out := make([]string, len(items))
	for i, w := range items {
		out[i] = w.ID
	}
	return out
}
