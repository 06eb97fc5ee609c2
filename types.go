package authgate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/arcweld/authgate/internal/audit"
)

// UserRecord is the full account record exchanged with a [UserStore].
// It carries the credential hash, the lockout state machine fields, the
// TOTP enrollment state, and the last successful login's device metadata.
type UserRecord struct {
	UserID       string
	Identifier   string
	PasswordHash string
	Verified     bool

	TOTPEnabled  bool
	TOTPSecret   []byte
	TOTPLastUsed int64

	FailedLogins int
	LockedUntil  time.Time

	LastLoginAt     time.Time
	LastLoginIP     string
	LastLoginDevice string
}

// UserUpdate is a partial update applied by [UserStore.UpdateUser]. Only
// non-nil fields change; the store must apply all set fields in one write.
type UserUpdate struct {
	PasswordHash *string
	Verified     *bool

	TOTPEnabled  *bool
	TOTPSecret   *[]byte
	TOTPLastUsed *int64

	FailedLogins *int
	LockedUntil  *time.Time

	LastLoginAt     *time.Time
	LastLoginIP     *string
	LastLoginDevice *string
}

// CreateUserInput is the input for [UserStore.CreateUser].
type CreateUserInput struct {
	Identifier   string
	PasswordHash string
	Verified     bool
}

// UserStore is the interface callers implement to connect the engine to
// their user database. Lookups for unknown users must return
// [ErrUserNotFound]; CreateUser must return [ErrDuplicateIdentifier] on an
// identifier collision so registration can map it to
// [ErrCredentialConflict] without a read-then-write race.
type UserStore interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdateUser(ctx context.Context, userID string, update UserUpdate) error
}

// Notifier delivers out-of-band codes and links. Implementations decide
// transport details; the engine treats delivery failure of informational
// messages as non-fatal.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, to, body string) error
}

// TokenPair is an access/refresh token pair issued for one session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by [Engine.Login]. When the account has TOTP
// enabled, MFARequired is true and MFAChallenge holds the intermediate
// token accepted by [Engine.ConfirmLoginTOTP]; the pair fields are empty.
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	MFARequired  bool
	MFAChallenge string
}

// RegisterResult is returned by [Engine.Register].
type RegisterResult struct {
	UserID string

	// VerificationToken is set when registration requires email
	// verification and no Notifier is configured, so the caller can
	// deliver it. Empty in production mode.
	VerificationToken string
}

// SessionInfo is one entry in the listing returned by [Engine.Sessions].
type SessionInfo struct {
	SessionID    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActiveAt time.Time
	Valid        bool

	IP          string
	UserAgent   string
	Fingerprint string
}

// AuthResult is returned by [Engine.Validate] for an accepted access token.
type AuthResult struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// TOTPProvision holds the base32 secret, the otpauth:// URI, and a
// scannable PNG rendering of it, returned by [Engine.ProvisionTOTP]. The
// enrollment is pending until the first successful
// [Engine.ConfirmTOTPSetup].
type TOTPProvision struct {
	SecretBase32 string
	URI          string
	QRCodePNG    []byte
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
