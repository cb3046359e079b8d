package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrUserNotFound      = errors.New("user not found")

	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentBusy     = errors.New("document is being ingested")
	ErrUnsupportedType  = errors.New("only PDF and plain-text files are supported")
	ErrFileTooLarge     = errors.New("file is too large")
	ErrIngestEnqueue    = errors.New("ingestion could not be scheduled")

	ErrChatNotFound = errors.New("chat not found")
)
