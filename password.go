package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	HasherArgon2id = "argon2id"
	HasherBcrypt   = "bcrypt"
)

const (
	argonKeyLen  = 32
	argonSaltLen = 16
)

// ErrMismatchedHashAndPassword is returned when a password does not match
// the stored hash.
var ErrMismatchedHashAndPassword = errors.New("password does not match hash")

// ErrUnsupportedHash is returned for hashes in an unknown format.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// ArgonParams are the Argon2id cost parameters.
type ArgonParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// Hasher hashes new passwords with the configured algorithm and verifies
// both Argon2id PHC strings and bcrypt hashes, so identities created
// before a hasher switch can still log in.
type Hasher struct {
	algorithm  string
	argon      ArgonParams
	bcryptCost int
}

// NewPasswordHasher builds a Hasher from cfg.
func NewPasswordHasher(cfg *Config) *Hasher {
	h := &Hasher{
		algorithm: cfg.PasswordHasher,
		argon: ArgonParams{
			Time:    cfg.ArgonTime,
			Memory:  cfg.ArgonMemoryKiB,
			Threads: cfg.ArgonThreads,
		},
		bcryptCost: cfg.BcryptCost,
	}
	if h.algorithm == "" {
		h.algorithm = HasherArgon2id
	}
	if h.argon.Time == 0 {
		h.argon.Time = 3
	}
	if h.argon.Memory == 0 {
		h.argon.Memory = 64 * 1024
	}
	if h.argon.Threads == 0 {
		h.argon.Threads = 1
	}
	if h.bcryptCost < bcrypt.MinCost {
		h.bcryptCost = bcrypt.DefaultCost
	}
	return h
}

// HashPassword will generate a password hash
func (h *Hasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	if h.algorithm == HasherBcrypt {
		out, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
		if err != nil {
			return "", wrapHashingError(err)
		}
		return string(out), nil
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", wrapHashingError(fmt.Errorf("generating salt: %w", err))
	}

	hash := argon2.IDKey([]byte(password), salt, h.argon.Time, h.argon.Memory, h.argon.Threads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.argon.Memory, h.argon.Time, h.argon.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (h *Hasher) ComparePasswordAndHash(password, hash string) error {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		salt, want, params, err := decodePHC(hash)
		if err != nil {
			return err
		}
		got := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(want)))
		if subtle.ConstantTimeCompare(want, got) != 1 {
			return ErrMismatchedHashAndPassword
		}
		return nil
	case strings.HasPrefix(hash, "$2"):
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return ErrMismatchedHashAndPassword
			}
			return err
		}
		return nil
	default:
		return ErrUnsupportedHash
	}
}

func decodePHC(encoded string) (salt, hash []byte, params ArgonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, params, ErrUnsupportedHash
	}

	if parts[1] != HasherArgon2id {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}

	// argon2.IDKey panics on zero time or threads
	if params.Memory == 0 || params.Time == 0 || params.Threads == 0 {
		return nil, nil, params, ErrUnsupportedHash
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}

	return salt, hash, params, nil
}
