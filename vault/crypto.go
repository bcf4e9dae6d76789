package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	keyInfo      = "kapa/container/key"
	verifierInfo = "kapa/container/verifier"
)

// randReader is swapped out by tests to simulate an exhausted entropy source.
var randReader io.Reader = rand.Reader

// idKey is argon2.IDKey; tests wrap it to count derivations.
var idKey = argon2.IDKey

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// GenerateBytes returns n bytes from the system CSPRNG. A short read is
// reported as ErrRandomness; there is no fallback source.
func GenerateBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomness, err)
	}
	return b, nil
}

func DefaultKDFParams() *KDFParams {
	return &KDFParams{Algo: KDFArgon2id, Time: 3, Memory: 64 * 1024, Threads: 4}
}

func (p *KDFParams) validate() error {
	if p.Algo != KDFArgon2id {
		return fmt.Errorf("%w: unsupported kdf %q", ErrInvalidInput, p.Algo)
	}
	if p.Time < 1 || p.Threads < 1 || p.Memory < 8*uint32(p.Threads) {
		return fmt.Errorf("%w: kdf parameters t=%d m=%d p=%d", ErrInvalidInput, p.Time, p.Memory, p.Threads)
	}
	return nil
}

// Hash is SHA-256 over the concatenation of chunks.
func Hash(chunks ...[]byte) [32]byte {
	h := sha256.New()
	for _, c := range chunks {
		h.Write(c)
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

// stretch runs argon2id once and expands the result into the container key
// and the seed the verifier is hashed from.
func stretch(password, salt []byte, kdf *KDFParams) (key, seed []byte, err error) {
	if err := kdf.validate(); err != nil {
		return nil, nil, err
	}
	master := idKey(password, salt, kdf.Time, kdf.Memory, kdf.Threads, KeyLen)
	defer Zero(master)

	key = make([]byte, KeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(keyInfo)), key); err != nil {
		return nil, nil, err
	}
	seed = make([]byte, KeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(verifierInfo)), seed); err != nil {
		Zero(key)
		return nil, nil, err
	}
	return key, seed, nil
}

// DeriveKey turns a password and salt into the 256-bit container key. With
// kdf == nil it uses the legacy schedule, a single SHA-256 of password||salt.
func DeriveKey(password, salt []byte, kdf *KDFParams) ([]byte, error) {
	if kdf == nil {
		sum := Hash(password, salt)
		return sum[:], nil
	}
	key, seed, err := stretch(password, salt, kdf)
	if err != nil {
		return nil, err
	}
	Zero(seed)
	return key, nil
}

// Verifier computes the value stored in a header to check a password
// without decrypting anything. Legacy headers store Hash(password, salt),
// which is also their key.
func Verifier(password, salt []byte, kdf *KDFParams) ([]byte, error) {
	if kdf == nil {
		sum := Hash(password, salt)
		return sum[:], nil
	}
	key, seed, err := stretch(password, salt, kdf)
	if err != nil {
		return nil, err
	}
	Zero(key)
	defer Zero(seed)
	sum := Hash(seed, salt)
	return sum[:], nil
}

func checkKeyIV(iv, key []byte) error {
	if len(key) != KeyLen {
		return fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidInput, KeyLen, len(key))
	}
	if len(iv) != IVLen {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrInvalidInput, IVLen, len(iv))
	}
	return nil
}

// Encrypt encrypts plaintext with AES-256-CBC and PKCS#7 padding.
func Encrypt(plaintext, iv, key []byte) ([]byte, error) {
	if err := checkKeyIV(iv, key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	padded := pad(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	Zero(padded)
	return ct, nil
}

// Decrypt reverses Encrypt. A wrong key almost always surfaces here as a
// padding error.
func Decrypt(ciphertext, iv, key []byte) ([]byte, error) {
	if err := checkKeyIV(iv, key); err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d", ErrCrypto, len(ciphertext), aes.BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	pt := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ciphertext)
	out, err := unpad(pt, aes.BlockSize)
	if err != nil {
		Zero(pt)
		return nil, err
	}
	return out, nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrCrypto)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrCrypto)
		}
	}
	return b[:len(b)-n], nil
}

func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
