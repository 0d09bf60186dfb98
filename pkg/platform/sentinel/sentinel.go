package sentinel

import "errors"

// Sentinel errors for storage facts. Case stores return these (optionally
// wrapped) and the workflow service translates them into coded domain errors:
//   - ErrNotFound: the case (or a record under it) does not exist
//   - ErrConflict: the expected case version no longer matches; another
//     writer committed first
//   - ErrAlreadyExists: a case with the same ID was already created
//   - ErrUnavailable: the backing store cannot be reached
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("version conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnavailable   = errors.New("unavailable")
)
