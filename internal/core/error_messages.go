package core

// # Error Codes Reference
//
// User-facing error messages carry a code that can be quoted to support.
// Sentinel errors from this package are matched first with errors.Is; any
// other error falls through to case-insensitive substring patterns.
//
//	FILE001 - File too large          FILE002 - Malformed file
//	FILE003 - Encoding error          FILE004 - No file
//	FILE005 - Empty file              FILE006 - Too many rows
//	UPL002  - System busy             UPL003  - Session not found
//	UPL004  - Request cancelled       UPL005  - Request timeout
//	UPL006  - Session expired         UPL007  - Session kind mismatch
//	VAL001  - Invalid parameter       VAL007  - Unknown kind
//	AUTH001 - Tenant missing
//	DB001   - Duplicate identifier    DB004   - Connection refused
//	DB005   - Connection reset        DB006   - Timeout
//	DB007   - Deadlock                DB008   - Store unavailable
//	REC001  - Recalculation queue full
//	RATE001 - Rate limited
//	ERR000  - Unknown error; check application logs for the technical error

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

// sentinelMessages is checked in order; wrapped errors match via errors.Is.
var sentinelMessages = []sentinelMessage{
	{ErrNoFile, UserMessage{"No file was selected", "Please select a CSV or XLSX file to upload", "FILE004"}},
	{ErrTooManyRows, UserMessage{"File has more rows than the import limit", "Split the file into smaller chunks", "FILE006"}},
	{ErrMalformedFile, UserMessage{"File could not be read", "Upload a CSV or XLSX export with a header row", "FILE002"}},
	{ErrTooManyUploads, UserMessage{"System is busy processing other uploads", "Please wait a moment and try again", "UPL002"}},
	{ErrSessionExpired, UserMessage{"Upload preview has expired", "Upload the file again to get a fresh preview", "UPL006"}},
	{ErrSessionNotFound, UserMessage{"Upload session not found", "The preview was already imported or replaced. Upload the file again", "UPL003"}},
	{ErrSessionKindMismatch, UserMessage{"Upload session belongs to a different import type", "Commit the preview from the page it was created on", "UPL007"}},
	{ErrInvalidParameter, UserMessage{"A request parameter is invalid", "Check dates (YYYY-MM-DD), period and paging values", "VAL001"}},
	{ErrUnknownKind, UserMessage{"Unknown import type", "Use orders, purchases or logistics", "VAL007"}},
	{ErrTenantRequired, UserMessage{"No tenant was resolved for this request", "Sign in again", "AUTH001"}},
	{ErrDuplicateIdentifier, UserMessage{"A record with this ID already exists", "Remove rows that were imported before", "DB001"}},
	{ErrStoreUnavailable, UserMessage{"Record store is unavailable", "Please try again in a few moments", "DB008"}},
	{ErrQueueFull, UserMessage{"Recalculation queue is full", "Please wait a moment and try again", "REC001"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "UPL004"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Try uploading a smaller file or check your connection", "UPL005"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first matching pattern wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this ID already exists", "Remove rows that were imported before", "DB001"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},
	{"timeout", UserMessage{"Operation timed out", "Try uploading a smaller file or try again later", "DB006"}},
	{"request body too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{"file too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save file as UTF-8 encoding", "FILE003"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Please upload a file with data rows", "FILE005"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// The encoding and empty-file patterns are checked before sentinels because
// they refine ErrMalformedFile.
//
// Example:
//
//	err := fmt.Errorf("commit: %w", ErrSessionExpired)
//	msg := MapError(err)
//	// msg.Code == "UPL006"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	if errors.Is(err, ErrMalformedFile) {
		for _, ep := range errorPatterns {
			if (ep.msg.Code == "FILE003" || ep.msg.Code == "FILE005") && strings.Contains(errStr, ep.pattern) {
				return ep.msg
			}
		}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
