package database

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrEmptyPassword is returned when hashing an empty admin password.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrMalformedHash is returned for stored hashes that are not argon2id
	// PHC strings.
	ErrMalformedHash = errors.New("malformed password hash")
)

// PasswordParams are the argon2id costs for admin password hashes.
type PasswordParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultPasswordParams is used for every new hash. Stored hashes with
// other costs are upgraded on the next successful login.
var DefaultPasswordParams = PasswordParams{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 2,
	KeyLen:  32,
	SaltLen: 16,
}

// HashPassword hashes password with DefaultPasswordParams.
func HashPassword(password string) (string, error) {
	return DefaultPasswordParams.Hash(password)
}

// Hash returns password as a PHC string:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
func (p PasswordParams) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return phcString{params: p, salt: salt, key: key}.String(), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(password, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(h.key, key) == 1, nil
}

// NeedsRehash reports whether encoded was made with costs other than
// DefaultPasswordParams. Unparseable hashes report false; CheckPassword
// rejects them.
func NeedsRehash(encoded string) bool {
	h, err := parsePHC(encoded)
	if err != nil {
		return false
	}
	want := DefaultPasswordParams
	return h.params.Time != want.Time ||
		h.params.Memory != want.Memory ||
		h.params.Threads != want.Threads ||
		uint32(len(h.key)) != want.KeyLen ||
		len(h.salt) != want.SaltLen
}

type phcString struct {
	params PasswordParams
	salt   []byte
	key    []byte
}

func (h phcString) String() string {
	enc := base64.RawStdEncoding
	return "$argon2id$v=" + strconv.Itoa(argon2.Version) +
		"$m=" + strconv.FormatUint(uint64(h.params.Memory), 10) +
		",t=" + strconv.FormatUint(uint64(h.params.Time), 10) +
		",p=" + strconv.FormatUint(uint64(h.params.Threads), 10) +
		"$" + enc.EncodeToString(h.salt) +
		"$" + enc.EncodeToString(h.key)
}

func parsePHC(encoded string) (phcString, error) {
	var h phcString
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return h, fmt.Errorf("%w: want 6 '$' separated fields, got %d", ErrMalformedHash, len(fields))
	}
	if fields[1] != "argon2id" {
		return h, fmt.Errorf("%w: algorithm %q", ErrMalformedHash, fields[1])
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return h, fmt.Errorf("%w: version %q", ErrMalformedHash, fields[2])
	}

	for _, kv := range strings.Split(fields[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return h, fmt.Errorf("%w: parameter %q", ErrMalformedHash, kv)
		}
		var bits int
		switch name {
		case "m", "t":
			bits = 32
		case "p":
			bits = 8
		default:
			return h, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, name)
		}
		n, err := strconv.ParseUint(value, 10, bits)
		if err != nil || n == 0 {
			return h, fmt.Errorf("%w: parameter %s=%q", ErrMalformedHash, name, value)
		}
		switch name {
		case "m":
			h.params.Memory = uint32(n)
		case "t":
			h.params.Time = uint32(n)
		case "p":
			h.params.Threads = uint8(n)
		}
	}
	if h.params.Memory == 0 || h.params.Time == 0 || h.params.Threads == 0 {
		return h, fmt.Errorf("%w: missing cost parameter", ErrMalformedHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return h, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return h, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	if len(h.key) == 0 {
		return h, fmt.Errorf("%w: empty key", ErrMalformedHash)
	}
	h.params.KeyLen = uint32(len(h.key))
	h.params.SaltLen = len(h.salt)
	return h, nil
}
