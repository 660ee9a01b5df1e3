package account

import "golang.org/x/crypto/bcrypt"

// CredentialVerifier checks a presented credential against a stored hash.
// The platform treats hashes as opaque; bcrypt is the default scheme.
type CredentialVerifier interface {
	Verify(hash, credential string) bool
}

// BcryptVerifier verifies bcrypt hashes.
type BcryptVerifier struct{}

func (BcryptVerifier) Verify(hash, credential string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)) == nil
}

// HashCredential produces a bcrypt hash for enrollment tooling and tests.
func HashCredential(credential string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
