package audit

import "time"

// Cursor marks the last record returned by a history page. Records are ordered by
// (At, ID) and IDs are ULIDs, so the pair is strictly increasing.
type Cursor struct {
	At time.Time
	ID string
}

// IsZero reports whether the cursor points before the first record.
func (c Cursor) IsZero() bool {
	return c.At.IsZero() && c.ID == ""
}
