package model

// SentinelNextItemID forces a reset at the next work item.
const SentinelNextItemID = -1

// SentinelWorkItemIndex marks a queue entry as a shutdown sentinel.
const SentinelWorkItemIndex = -1

// WorkItem is a unit of pipelined work: a contiguous output span for one video.
type WorkItem struct {
	// Index is this item's position in the planner's global ordered work
	// list. It is the "work_item_index" referenced throughout the save
	// blob path and the queue sentinel value.
	Index int

	VideoIndex int
	ItemID int64
	NextItemID int64
	RowsFromStart int
}

// ForcesReset reports whether this item's NextItemID is the sentinel value,
// meaning the evaluate worker must reset before processing whatever item
// follows it (a SequenceGather boundary).
func (w WorkItem) ForcesReset() bool {
	return w.NextItemID == SentinelNextItemID
}
