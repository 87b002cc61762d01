package domain

// Token purposes. A verification token proves control of the signup email;
// a reset token authorizes a password change without a session.
const (
	TokenPurposeVerify = "verify"
	TokenPurposeReset  = "reset"
)

// VerificationToken is a single-use emailed credential.
// PK: token value. ExpiresAt is a Unix timestamp used as DynamoDB TTL;
// expiry is fixed at 12 hours from issuance.
type VerificationToken struct {
	Token     string `json:"token" dynamodbav:"token"`
	UserID    string `json:"user_id" dynamodbav:"user_id"`
	Email     string `json:"email" dynamodbav:"email"`
	Purpose   string `json:"purpose" dynamodbav:"purpose"` // "verify" | "reset"
	CreatedAt int64  `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}
