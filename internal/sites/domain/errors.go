package domain

import "errors"

var (
	ErrSiteNotFound  = errors.New("site not found")
	ErrUserRequired  = errors.New("user id is required")
	ErrInvalidEdit   = errors.New("invalid edit")
	ErrInvalidSiteID = errors.New("site id is required")
)
