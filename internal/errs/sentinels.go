// Package errs contains sentinel errors shared by the store, core and api layers.
// The api layer maps them to HTTP status codes with errors.Is.
package errs

import "errors"

var (
	// ErrInvalidRequest indicates malformed or missing input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidCredentials is returned for both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDuplicateAccount indicates the email is already registered.
	ErrDuplicateAccount = errors.New("email already registered")

	// ErrUnauthorized indicates a missing, malformed or expired session token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller acting on another user's data.
	ErrForbidden = errors.New("forbidden")

	ErrNotFound = errors.New("not found")

	// ErrEmbedding indicates the embedding service failed or timed out.
	ErrEmbedding = errors.New("embedding failed")

	// ErrVectorIndex indicates the similarity search or upsert failed.
	ErrVectorIndex = errors.New("vector index failed")

	// ErrCompletion indicates the language model call failed or returned no text.
	ErrCompletion = errors.New("completion failed")

	// ErrRequestFailed is the generic orchestration failure surfaced to users.
	ErrRequestFailed = errors.New("request failed")

	// ErrPersistence indicates the conversation could not be saved.
	ErrPersistence = errors.New("persistence failed")

	// ErrAvatar indicates the video synthesis job could not be submitted or failed.
	ErrAvatar = errors.New("avatar generation failed")

	// ErrAvatarTimeout indicates the video synthesis job did not finish in time.
	ErrAvatarTimeout = errors.New("avatar generation timed out")
)
