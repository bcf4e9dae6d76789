package vault

import "errors"

const (
	KeyLen      = 32
	IVLen       = 16
	SaltLen     = 16
	VerifierLen = 32
	KDFArgon2id = "argon2id"
)

var (
	ErrInvalidInput   = errors.New("vault: invalid input")
	ErrRandomness     = errors.New("vault: secure random generation failed")
	ErrCrypto         = errors.New("vault: cipher operation failed")
	ErrSerialization  = errors.New("vault: serialization failed")
	ErrDuplicateEntry = errors.New("vault: entry already exists")
	ErrCorrupt        = errors.New("vault: index and entries out of sync")
	ErrWrongPassword  = errors.New("vault: password does not match")
)

// OpenEntry is a decrypted credential record.
type OpenEntry struct {
	Desc  string `bson:"desc"`
	User  string `bson:"user"`
	Email string `bson:"email"`
	Notes string `bson:"notes"`
	Pw    string `bson:"pw"`
}

// KDFParams are the argon2id cost parameters recorded in a container header.
// A header without them was written with the single-hash key schedule.
type KDFParams struct {
	Algo    string `bson:"algo"`
	Time    uint32 `bson:"time"`
	Memory  uint32 `bson:"memory"`
	Threads uint8  `bson:"threads"`
}

type Header struct {
	Verifier []byte     `bson:"verifier"`
	Salt     []byte     `bson:"salt"`
	KDF      *KDFParams `bson:"kdf,omitempty"`
}

// Sealed is a ciphertext together with the IV it was encrypted under. Both
// the index and every entry are stored this way.
type Sealed struct {
	IV         []byte `bson:"iv"`
	Ciphertext []byte `bson:"ciphertext"`
}

type index struct {
	Names []string `bson:"names"`
}
