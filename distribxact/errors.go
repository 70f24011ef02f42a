package distribxact

import "fmt"

// MalformedGIDError is raised when a GID carries the "dtx:" prefix but
// does not parse as a well-formed distributed-transaction id.
type MalformedGIDError struct {
	GID string
}

func (e *MalformedGIDError) Error() string {
	return fmt.Sprintf("distribxact: malformed distributed transaction gid %q", e.GID)
}
