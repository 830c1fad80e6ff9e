package sync

import "fmt"

// PullResult counts the outcome of each letter of a pull
type PullResult struct {
	New       int
	Changed   int
	Unchanged int
	Skipped   int
	Excluded  int
	Failed    int
}

// Add accumulates the counts of other
func (r *PullResult) Add(other PullResult) {
	r.New += other.New
	r.Changed += other.Changed
	r.Unchanged += other.Unchanged
	r.Skipped += other.Skipped
	r.Excluded += other.Excluded
	r.Failed += other.Failed
}

// Total returns the number of letters seen
func (r PullResult) Total() int {
	return r.New + r.Changed + r.Unchanged + r.Skipped + r.Excluded + r.Failed
}

func (r PullResult) String() string {
	s := fmt.Sprintf("Fetched %d new, %d changed letters", r.New, r.Changed)
	if r.Skipped > 0 || r.Failed > 0 {
		s += fmt.Sprintf(" (%d skipped, %d failed)", r.Skipped, r.Failed)
	}
	if r.Excluded > 0 {
		s += fmt.Sprintf(", %d excluded", r.Excluded)
	}
	return s
}

// PushResult counts the outcome of each file of a push
type PushResult struct {
	Pushed   int
	Skipped  int
	NotFound int
	Failed   int
	// Aborted is set when the user declined the confirmation
	Aborted bool
}

func (r PushResult) String() string {
	s := fmt.Sprintf("Pushed %d file(s)", r.Pushed)
	if r.Skipped > 0 || r.NotFound > 0 || r.Failed > 0 {
		s += fmt.Sprintf(" (%d skipped, %d not found, %d failed)", r.Skipped, r.NotFound, r.Failed)
	}
	return s
}
