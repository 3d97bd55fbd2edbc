package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clubhub/internal/student"
	"clubhub/internal/verifyclient"
)

// ErrUnresolvable means the identifier holds no usable roll number; the
// operator should type the roll in by hand.
var ErrUnresolvable = errors.New("identifier could not be resolved to a roll number")

// ErrVerifyUnavailable means the verification site could not be reached.
// The code itself may be valid, so it is reported as a failure rather than
// a bad scan.
var ErrVerifyUnavailable = verifyclient.ErrUnavailable

// RollFetcher scrapes a roll number from a verification page.
type RollFetcher interface {
	Roll(ctx context.Context, url string) (string, error)
}

// Resolver turns scanned or typed identifiers into roll numbers.
type Resolver struct {
	verify RollFetcher
}

// NewResolver creates a resolver. verify may be nil, in which case
// verification urls are rejected.
func NewResolver(verify RollFetcher) *Resolver {
	return &Resolver{verify: verify}
}

// Resolve accepts a bare roll number or a verification url. Team payloads
// belong to judging and are rejected.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	id := strings.TrimSpace(identifier)
	switch {
	case id == "":
		return "", fmt.Errorf("%w: empty", ErrUnresolvable)
	case strings.HasPrefix(strings.ToUpper(id), "TEAM|"):
		return "", fmt.Errorf("%w: team code cannot be used for check-in", ErrUnresolvable)
	case isURL(id):
		if r.verify == nil {
			return "", fmt.Errorf("%w: verification links are disabled", ErrUnresolvable)
		}
		roll, err := r.verify.Roll(ctx, id)
		switch {
		case errors.Is(err, ErrVerifyUnavailable):
			return "", err
		case err != nil:
			return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
		}
		return checkRoll(roll)
	default:
		return checkRoll(id)
	}
}

func checkRoll(raw string) (string, error) {
	roll := student.NormalizeRoll(raw)
	if !student.ValidRoll(roll) {
		return "", fmt.Errorf("%w: %q is not a roll number", ErrUnresolvable, raw)
	}
	return roll, nil
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
