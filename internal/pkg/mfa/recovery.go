package mfa

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// RecoveryCodeGenerator defines an interface for generating MFA recovery codes.
type RecoveryCodeGenerator interface {
	// Generate returns a slice of unique recovery codes or an error if the
	// random source fails.
	Generate() ([]string, error)
}

// codeCount is how many recovery codes one enrollment receives. The full set
// is shown exactly once at confirmation time.
const codeCount = 10

// alphabet excludes 0/O and 1/I/L so codes survive being read aloud or
// copied by hand.
const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// RecoveryCode generates cryptographically secure MFA recovery codes.
//
// It produces recovery codes formatted as:
//
//	XXXX-XXXX
//
// Each X is selected uniformly at random from the alphabet constant.
type RecoveryCode struct{}

// NewRecoveryCode returns a new RecoveryCode generator.
func NewRecoveryCode() *RecoveryCode {
	return &RecoveryCode{}
}

// Generate produces a set of unique single-use recovery codes.
func (rc *RecoveryCode) Generate() ([]string, error) {
	out := make([]string, 0, codeCount)
	seen := make(map[string]struct{}, codeCount)

	for len(out) < codeCount {
		code, err := rc.generateCode()
		if err != nil {
			return nil, err
		}

		// extremely unlikely, but prevents accidental duplicates
		if _, ok := seen[code]; ok {
			continue
		}

		seen[code] = struct{}{}
		out = append(out, code)
	}

	return out, nil
}

func (rc *RecoveryCode) generateCode() (string, error) {
	var sb strings.Builder
	sb.Grow(9)

	for i := 0; i < 8; i++ {
		if i == 4 {
			sb.WriteByte('-')
		}

		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		sb.WriteByte(alphabet[idx.Int64()])
	}

	return sb.String(), nil
}
