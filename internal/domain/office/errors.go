package office

import "errors"

var (
	ErrOfficeNotFound   = errors.New("office not found")
	ErrNoOfficesDefined = errors.New("no active offices are configured")
)
