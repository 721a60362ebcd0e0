package form

import "github.com/rotisserie/eris"

var (
	// ErrCorrupt is returned by every stage once a form is corrupt.
	ErrCorrupt = eris.New("form is corrupt")
	// ErrReservedKey means a capability tried to own or write an identity key.
	ErrReservedKey = eris.New("reserved fact key")
	// ErrDuplicateCapability means two capabilities claim the same fact key.
	ErrDuplicateCapability = eris.New("duplicate capability")
)

// Identity fact keys seeded at construction.
const (
	KeyFormType = "form_type"
	KeyFormID   = "form_id"
	KeyFormDate = "form_date"
)

// UnableToRetrieve is the message recorded for a simulated source failure.
const UnableToRetrieve = "Unable to retrieve"

// IsReserved reports whether key is one of the identity facts.
func IsReserved(key string) bool {
	switch key {
	case KeyFormType, KeyFormID, KeyFormDate:
		return true
	default:
		return false
	}
}
