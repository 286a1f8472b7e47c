package cos

import "github.com/google/uuid"

// GenID returns a fresh random record/processor id, used whenever a caller
// does not supply one.
func GenID() string { return uuid.NewString() }
