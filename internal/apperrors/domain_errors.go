package apperrors

var (
	// crypto
	ErrDecryptionFailed  = New(KindCrypto, "message authentication failed")
	ErrEncryptionFailed  = New(KindCrypto, "message encryption failed")
	ErrMalformedEnvelope = New(KindCrypto, "malformed plaintext envelope")
	ErrMessageKeyUsed    = New(KindCrypto, "message key already consumed")
	ErrSkipLimit         = New(KindCrypto, "too many skipped messages")

	// session
	ErrSessionNotFound        = New(KindSession, "no session state for peer")
	ErrMissingRatchetHeader   = New(KindSession, "missing or corrupt ratchet header")
	ErrReceivingChainNotFound = New(KindSession, "no receiving chain for session")
	ErrSessionMismatch        = New(KindSession, "handshake does not match ratchet header session")
	ErrIdentityKeyChanged     = New(KindSession, "peer identity key changed")
	ErrInvalidSignedPreKey    = New(KindSession, "invalid signed prekey signature")
	ErrUnknownSignedPreKey    = New(KindSession, "unknown signed prekey")
	ErrOneTimePreKeyMissing   = New(KindSession, "one-time prekey already consumed")

	// lookups
	ErrConversationNotFound = NotFound("conversation not found")
	ErrAccountNotFound      = NotFound("account not found")

	// arguments
	ErrInvalidRecipient    = InvalidArg("recipient id is required")
	ErrInvalidSender       = InvalidArg("sender id does not match local user")
	ErrInvalidParticipants = InvalidArg("a conversation needs at least two distinct participants")
)
