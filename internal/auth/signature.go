// Package auth holds the two authentication schemes of the relay: Ed25519
// signature proofs (the primary, key-based scheme used by the websocket
// handshake and signed REST requests) and an alternate username/password
// login that issues HS256 JWTs.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strconv"
	"time"
)

// ReplayWindow bounds how far a signed timestamp may drift from server time.
const ReplayWindow = 5 * time.Minute

var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrExpired            = errors.New("auth: timestamp outside replay window")
	ErrBadSignature       = errors.New("auth: invalid signature")
)

// VerifySignature checks a base64 Ed25519 signature over payload with a
// base64-encoded public key.
func VerifySignature(publicKeyB64, signatureB64 string, payload []byte) error {
	pub, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return ErrBadSignature
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return ErrBadSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, sig) {
		return ErrBadSignature
	}
	return nil
}

// CheckTimestamp enforces the replay window around a unix-seconds timestamp
// string supplied by the client.
func CheckTimestamp(ts string, now time.Time, window time.Duration) error {
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrExpired
	}
	drift := now.Unix() - n
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > window {
		return ErrExpired
	}
	return nil
}

// VerifyHandshake validates the connection handshake: proof of control over
// publicKey, bound to a timestamp, within the replay window.
func VerifyHandshake(publicKeyB64, ts, signatureB64 string, now time.Time) error {
	if publicKeyB64 == "" || ts == "" || signatureB64 == "" {
		return ErrMissingCredentials
	}
	if err := CheckTimestamp(ts, now, ReplayWindow); err != nil {
		return err
	}
	return VerifySignature(publicKeyB64, signatureB64, []byte(ts))
}
