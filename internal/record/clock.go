package record

import "time"

// Clock supplies the single timestamp captured at the start of each
// operation. Injecting it keeps a record's key, stored timestamp, and
// audit entry on the same instant even across a day boundary, and lets
// tests pin time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall-clock Clock used outside tests. Times
// are UTC so date stamps do not depend on host timezone.
func SystemClock() Clock { return systemClock{} }
