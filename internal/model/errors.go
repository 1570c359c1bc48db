package model

// ErrorKind classifies a failure for escalation and propagation policy.
// Identity-specific kinds (AuthFailed, SecurityCheckpoint, RateLimited)
// drive credential-pool state transitions; the rest are transient or
// terminal run conditions.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "InvalidInput"
	KindAuthFailed         ErrorKind = "AuthFailed"
	KindSecurityCheckpoint ErrorKind = "SecurityCheckpoint"
	KindRateLimited        ErrorKind = "RateLimited"
	KindTimeout            ErrorKind = "Timeout"
	KindProcessError       ErrorKind = "ProcessError"
	KindFetchError         ErrorKind = "FetchError"
	KindParseError         ErrorKind = "ParseError"
	KindNoneAvailable      ErrorKind = "NoneAvailable"
	KindMissingContext     ErrorKind = "MissingContext"
)

// IdentitySpecific reports whether the kind should be charged against the
// identity that performed the call rather than the run as a whole.
func (k ErrorKind) IdentitySpecific() bool {
	switch k {
	case KindAuthFailed, KindSecurityCheckpoint, KindRateLimited:
		return true
	}
	return false
}
