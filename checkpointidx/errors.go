package checkpointidx

import (
	"fmt"

	"github.com/coralbase/twopc/gxact"
)

// DuplicateXIDError is raised by Insert when xid is already tracked.
type DuplicateXIDError struct {
	XID gxact.XID
}

func (e *DuplicateXIDError) Error() string {
	return fmt.Sprintf("checkpointidx: xid %d is already tracked", e.XID)
}
