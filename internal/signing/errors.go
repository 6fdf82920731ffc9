package signing

import "errors"

// Error taxonomy surfaced to handlers. Validation failures never mutate
// state; token errors carry no detail about why lookup failed beyond the
// sentinel itself.
var (
	ErrTokenNotFound      = errors.New("signing: token not found")
	ErrTokenExpired       = errors.New("signing: token expired")
	ErrAlreadySigned      = errors.New("signing: invitation already completed")
	ErrInvitationDeclined = errors.New("signing: invitation declined")
	ErrInvalidExpiration  = errors.New("signing: expiration days must be between 1 and 30")
	ErrEmptySignature     = errors.New("signing: signature image is empty or too small")
	ErrSignatureTooLarge  = errors.New("signing: signature image exceeds size limit")
	ErrInvalidImage       = errors.New("signing: signature image is not a supported raster format")
	ErrInvalidSignerInfo  = errors.New("signing: signer name must be 2-100 characters")
	ErrDocumentLocked     = errors.New("signing: document fields are locked outside draft")
	ErrDocumentNotFound   = errors.New("signing: document not found")
	ErrInvalidTransition  = errors.New("signing: illegal document status transition")
	ErrFieldUnassigned    = errors.New("signing: every signature field must be assigned to a signer")
)
