/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnsupportedEvent indicates that a socket client sent an event name with no handler.
	ErrUnsupportedEvent = 1008
)

// 2xxx: Room and Message Business Logic Errors
const (
	// ErrRoomTypeInvalid indicates that an invalid room type was provided during creation.
	ErrRoomTypeInvalid = 2101

	// ErrRoomNotFound indicates that the referenced chat room does not exist or is not active.
	ErrRoomNotFound = 2103

	// ErrNotRoomMember indicates that the caller has no membership row for the room.
	ErrNotRoomMember = 2105

	// ErrAlreadyRoomMember indicates that the caller is already a member of the room.
	ErrAlreadyRoomMember = 2106

	// ErrMessageContentTooLong indicates that the user's message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2201

	// ErrMessageEmpty indicates that the message content was empty after trimming.
	ErrMessageEmpty = 2202

	// ErrReplyTargetInvalid indicates that replyToId does not reference a live message in the same room.
	ErrReplyTargetInvalid = 2203

	// ErrMessageTypeInvalid indicates that the message type is not one of text, image or file.
	ErrMessageTypeInvalid = 2204

	// ErrMessageNotFound indicates that the referenced message does not exist.
	ErrMessageNotFound = 2205

	// ErrFileSizeTooLarge indicates that the attachment exceeds the allowed size.
	ErrFileSizeTooLarge = 2301

	// ErrAttachmentKeyInvalid indicates that an attachment key is outside the room's key space.
	ErrAttachmentKeyInvalid = 2302
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized is the generic authentication failure shown to callers.
	ErrUnauthorized = 3000

	// ErrInvalidCredentials indicates a failed login, whatever the underlying reason.
	ErrInvalidCredentials = 3001

	// ErrForbidden indicates that the identity is valid but its role is insufficient.
	ErrForbidden = 3002

	// ErrUserAlreadyExists indicates that the email is already registered.
	ErrUserAlreadyExists = 3003

	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = 3004

	// ErrSessionKicked indicates that the current client connection has been terminated.
	ErrSessionKicked = 3005

	// ErrInvalidUsername indicates that the username is empty or too long.
	ErrInvalidUsername = 3006

	// ErrInvalidPassword indicates that the password does not meet length or complexity rules.
	ErrInvalidPassword = 3007

	// ErrInvalidEmail indicates that the email address is malformed or too long.
	ErrInvalidEmail = 3008

	// ErrTokenExpired indicates the credential's exp is in the past.
	ErrTokenExpired = 3101

	// ErrTokenMalformed indicates the credential could not be parsed or its signature is wrong.
	ErrTokenMalformed = 3102

	// ErrTokenKindMismatch indicates an access credential used as refresh, or the reverse.
	ErrTokenKindMismatch = 3103

	// ErrTokenRevoked indicates the refresh credential was revoked at logout.
	ErrTokenRevoked = 3104
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrPersistence indicates a storage I/O failure.
	ErrPersistence = 5001

	// ErrTokenSigning indicates that a credential could not be issued.
	ErrTokenSigning = 5002

	// ErrSessionWrite indicates that session cookies could not be written.
	ErrSessionWrite = 5003

	// ErrFileStorageFailed indicates that the object storage request failed.
	ErrFileStorageFailed = 5004

	// ErrServiceUnavailable indicates that a backing store failed its health check.
	ErrServiceUnavailable = 5005
)
