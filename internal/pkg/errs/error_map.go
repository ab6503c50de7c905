/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses and internal error handling.
*/
package errs

import "net/http"

// authMessage is shared by every credential failure so callers cannot tell them apart.
const authMessage = "Please sign in again."

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message, kind and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Kind: KindInput, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Kind: KindInput, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Kind: KindInput, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Kind: KindInput, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Kind: KindInput, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Kind: KindInput, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnsupportedEvent:      {Code: ErrUnsupportedEvent, Kind: KindInput, Message: "Unsupported event.", Status: http.StatusBadRequest},

	// 2xxx: Room and Message Business Logic Errors
	ErrRoomTypeInvalid:       {Code: ErrRoomTypeInvalid, Kind: KindInput, Message: "Invalid chat type.", Status: http.StatusBadRequest},
	ErrRoomNotFound:          {Code: ErrRoomNotFound, Kind: KindNotFound, Message: "Chat room not found.", Status: http.StatusNotFound},
	ErrNotRoomMember:         {Code: ErrNotRoomMember, Kind: KindNotAuthorized, Message: "You are not a member of this chat room.", Status: http.StatusForbidden},
	ErrAlreadyRoomMember:     {Code: ErrAlreadyRoomMember, Kind: KindInput, Message: "You are already a member of this chat room.", Status: http.StatusConflict},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Kind: KindInput, Message: "Message is too long.", Status: http.StatusBadRequest},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Kind: KindInput, Message: "Message cannot be empty.", Status: http.StatusBadRequest},
	ErrReplyTargetInvalid:    {Code: ErrReplyTargetInvalid, Kind: KindNotFound, Message: "The message you replied to is unavailable.", Status: http.StatusNotFound},
	ErrMessageTypeInvalid:    {Code: ErrMessageTypeInvalid, Kind: KindInput, Message: "Invalid message type.", Status: http.StatusBadRequest},
	ErrMessageNotFound:       {Code: ErrMessageNotFound, Kind: KindNotFound, Message: "Message not found.", Status: http.StatusNotFound},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Kind: KindInput, Message: "File is too large.", Status: http.StatusBadRequest},
	ErrAttachmentKeyInvalid:  {Code: ErrAttachmentKeyInvalid, Kind: KindInput, Message: "Invalid attachment.", Status: http.StatusBadRequest},

	// 3xxx: User, Session, and Security Errors
	ErrUnauthorized:       {Code: ErrUnauthorized, Kind: KindAuth, Message: authMessage, Status: http.StatusUnauthorized},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Kind: KindAuth, Message: "Incorrect email or password.", Status: http.StatusUnauthorized},
	ErrForbidden:          {Code: ErrForbidden, Kind: KindNotAuthorized, Message: "You do not have permission to do that.", Status: http.StatusForbidden},
	ErrUserAlreadyExists:  {Code: ErrUserAlreadyExists, Kind: KindInput, Message: "This email is already registered.", Status: http.StatusConflict},
	ErrUserNotFound:       {Code: ErrUserNotFound, Kind: KindNotFound, Message: "Account not found.", Status: http.StatusNotFound},
	ErrSessionKicked:      {Code: ErrSessionKicked, Kind: KindAuth, Message: "Your connection was closed by the server.", Status: http.StatusUnauthorized},
	ErrInvalidUsername:    {Code: ErrInvalidUsername, Kind: KindInput, Message: "Username must be 1 to 100 characters.", Status: http.StatusBadRequest},
	ErrInvalidPassword:    {Code: ErrInvalidPassword, Kind: KindInput, Message: "Password must be 8 to 72 characters with upper and lower case letters and a digit.", Status: http.StatusBadRequest},
	ErrInvalidEmail:       {Code: ErrInvalidEmail, Kind: KindInput, Message: "Email format is incorrect.", Status: http.StatusBadRequest},
	ErrTokenExpired:       {Code: ErrTokenExpired, Kind: KindAuth, Message: authMessage, Status: http.StatusUnauthorized},
	ErrTokenMalformed:     {Code: ErrTokenMalformed, Kind: KindAuth, Message: authMessage, Status: http.StatusUnauthorized},
	ErrTokenKindMismatch:  {Code: ErrTokenKindMismatch, Kind: KindAuth, Message: authMessage, Status: http.StatusUnauthorized},
	ErrTokenRevoked:       {Code: ErrTokenRevoked, Kind: KindAuth, Message: authMessage, Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:            {Code: ErrUnknown, Kind: KindInternal, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrPersistence:        {Code: ErrPersistence, Kind: KindPersistence, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrTokenSigning:       {Code: ErrTokenSigning, Kind: KindSigning, Message: "Sign in failed. Please try again.", Status: http.StatusInternalServerError},
	ErrSessionWrite:       {Code: ErrSessionWrite, Kind: KindSigning, Message: "Sign in failed. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed:  {Code: ErrFileStorageFailed, Kind: KindInternal, Message: "File upload failed. Please try again.", Status: http.StatusBadGateway},
	ErrServiceUnavailable: {Code: ErrServiceUnavailable, Kind: KindInternal, Message: "Service is temporarily unavailable.", Status: http.StatusServiceUnavailable},
}
