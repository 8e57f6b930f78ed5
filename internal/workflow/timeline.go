package workflow

import "sort"

// BuildTimeline merges the history log and comment log into one chronological
// sequence. Items are ordered by timestamp ascending; ties keep insertion
// order within each log, history before comments (stable merge), so repeated
// calls over the same inputs produce identical output. The source logs are
// never mutated.
func BuildTimeline(r *Request) []TimelineItem {
	items := make([]TimelineItem, 0, len(r.History)+len(r.Comments))
	for _, event := range r.History {
		items = append(items, TimelineItem{
			Origin:      "history",
			ID:          event.ID,
			ActorUserID: event.ActorUserID,
			Timestamp:   event.Timestamp,
			Action:      event.Action,
			Changes:     copyChanges(event.Changes),
		})
	}
	for _, comment := range r.Comments {
		items = append(items, TimelineItem{
			Origin:      "comment",
			ID:          comment.ID,
			ActorUserID: comment.ActorUserID,
			Timestamp:   comment.Timestamp,
			Content:     comment.Content,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	return items
}

func copyChanges(changes []FieldChange) []FieldChange {
	if len(changes) == 0 {
		return nil
	}
	copied := make([]FieldChange, len(changes))
	copy(copied, changes)
	return copied
}
