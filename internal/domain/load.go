package domain

// LoadResult accounts for one bulk load at page granularity.
type LoadResult struct {
	Attempted   int
	Inserted    int
	Duplicates  int
	Pages       int
	FailedPages int
	FailedRows  int
}

// Add accumulates another result into r.
func (r *LoadResult) Add(other LoadResult) {
	r.Attempted += other.Attempted
	r.Inserted += other.Inserted
	r.Duplicates += other.Duplicates
	r.Pages += other.Pages
	r.FailedPages += other.FailedPages
	r.FailedRows += other.FailedRows
}
