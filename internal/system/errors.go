package system

import "errors"

var (
	ErrInvalidName        = errors.New("invalid printer name")
	ErrDuplicateName      = errors.New("printer name already in use")
	ErrDuplicatePrinterID = errors.New("printer id already in use")
	ErrPrinterBusy        = errors.New("printer has active jobs")
	ErrPrinterDeleted     = errors.New("printer has been deleted")
	ErrJobNotFound        = errors.New("job not found")
	ErrJobCompleted       = errors.New("job already completed")
	ErrNotSettable        = errors.New("attribute is not settable")
)
