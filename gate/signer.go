package gate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const DefaultSignatureTTL = 15 * time.Minute

// Signer issues and verifies HMAC-SHA256 signatures over the canonical
// form of a request. It is independent of the policy engine: it proves
// that a decision was made for this exact payload, not that the decision
// was correct.
type Signer struct {
	key   []byte
	keyID string
	ttl   time.Duration
	now   func() time.Time
}

type SignerConfig struct {
	// Key is the service-held HMAC secret. Required.
	Key []byte
	// KeyID names the key for future rotation. Defaults to "k1".
	KeyID string
	// TTL is the signature validity window. Defaults to 15 minutes.
	TTL time.Duration
}

func NewSigner(cfg SignerConfig) (*Signer, error) {
	if len(cfg.Key) == 0 {
		return nil, fmt.Errorf("missing signing key")
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		keyID = "k1"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSignatureTTL
	}
	return &Signer{
		key:   append([]byte(nil), cfg.Key...),
		keyID: keyID,
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

// Sign computes an HMAC-SHA256 over the request's canonical bytes and
// wraps it in a fresh, short-lived ActionSignature.
func (s *Signer) Sign(req ActionRequest) (ActionSignature, error) {
	mac, err := s.computeMAC(req)
	if err != nil {
		return ActionSignature{}, err
	}
	issuedAt := s.now().UTC()
	return ActionSignature{
		ID:        "sig_" + randHex(12),
		ActionID:  req.ID,
		Algorithm: AlgorithmHMACSHA256,
		KeyID:     s.keyID,
		Signature: hex.EncodeToString(mac),
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.ttl),
	}, nil
}

// Verification is the outcome of checking a signature against a presented
// request.
type Verification struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Verification failure reasons, ordered by check precedence.
const (
	ReasonExpired          = "expired"
	ReasonActionIDMismatch = "action id mismatch"
	ReasonInvalidSignature = "invalid signature"
)

// Verify re-derives the canonical bytes from the presented request and
// recomputes the HMAC. Checks run in a fixed order: expiry, then action id
// binding, then the MAC itself, so a tampered request is reported
// distinctly from a merely stale one.
func (s *Signer) Verify(req ActionRequest, sig ActionSignature) Verification {
	if s.now().UTC().After(sig.ExpiresAt) {
		return Verification{Reason: ReasonExpired}
	}
	if sig.ActionID != req.ID {
		return Verification{Reason: ReasonActionIDMismatch}
	}

	mac, err := s.computeMAC(req)
	if err != nil {
		return Verification{Reason: ReasonInvalidSignature}
	}
	stored, err := hex.DecodeString(sig.Signature)
	if err != nil {
		return Verification{Reason: ReasonInvalidSignature}
	}
	// hmac.Equal is constant-time; a bytes.Equal here would leak a timing
	// side channel.
	if !hmac.Equal(mac, stored) {
		return Verification{Reason: ReasonInvalidSignature}
	}
	return Verification{Valid: true}
}

func (s *Signer) computeMAC(req ActionRequest) ([]byte, error) {
	canonical, err := canonicalRequestBytes(req)
	if err != nil {
		return nil, err
	}
	h := hmac.New(sha256.New, s.key)
	h.Write(canonical)
	return h.Sum(nil), nil
}
