package vault

import (
	"fmt"
	"slices"

	"github.com/fahmaliyi/kapa/codec"
	"go.mongodb.org/mongo-driver/bson"
)

// Container is the decoded content of a data file: a header, the sealed
// name index and one sealed entry per indexed name, in index order.
//
// A Container is not safe for concurrent use.
type Container struct {
	Header  Header   `bson:"header"`
	Index   Sealed   `bson:"index"`
	Entries []Sealed `bson:"entries"`
}

// TryNew creates an empty container protected by password. A nil kdf
// selects DefaultKDFParams.
func TryNew(password []byte, kdf *KDFParams) (*Container, error) {
	if kdf == nil {
		kdf = DefaultKDFParams()
	}
	salt, err := GenerateBytes(SaltLen)
	if err != nil {
		return nil, err
	}
	key, seed, err := stretch(password, salt, kdf)
	if err != nil {
		return nil, err
	}
	defer Zero(key)
	verifier := Hash(seed, salt)
	Zero(seed)

	idx, err := sealIndex(nil, key)
	if err != nil {
		return nil, err
	}

	params := *kdf
	return &Container{
		Header:  Header{Verifier: verifier[:], Salt: salt, KDF: &params},
		Index:   idx,
		Entries: []Sealed{},
	}, nil
}

// Load decodes a data file and checks that every fixed-width field has its
// expected size.
func Load(content []byte) (*Container, error) {
	var c Container
	if err := codec.Decode(content, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Bytes encodes the container for persistence.
func (c *Container) Bytes() ([]byte, error) {
	b, err := codec.Encode(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return b, nil
}

// Len is the number of stored entries. It does not need the password.
func (c *Container) Len() int { return len(c.Entries) }

func (c *Container) validate() error {
	if len(c.Header.Verifier) != VerifierLen {
		return fmt.Errorf("%w: verifier is %d bytes", ErrSerialization, len(c.Header.Verifier))
	}
	if len(c.Header.Salt) != SaltLen {
		return fmt.Errorf("%w: salt is %d bytes", ErrSerialization, len(c.Header.Salt))
	}
	if len(c.Index.IV) != IVLen {
		return fmt.Errorf("%w: index iv is %d bytes", ErrSerialization, len(c.Index.IV))
	}
	for i, e := range c.Entries {
		if len(e.IV) != IVLen {
			return fmt.Errorf("%w: entry %d iv is %d bytes", ErrSerialization, i, len(e.IV))
		}
	}
	return nil
}

// VerifyPassword reports whether password reproduces the header verifier.
// The comparison is constant time.
func (c *Container) VerifyPassword(password []byte) (bool, error) {
	v, err := Verifier(password, c.Header.Salt, c.Header.KDF)
	if err != nil {
		return false, err
	}
	return constantTimeEqual(v, c.Header.Verifier), nil
}

func (c *Container) key(password []byte) ([]byte, error) {
	return DeriveKey(password, c.Header.Salt, c.Header.KDF)
}

// names decrypts the index and checks it against the entry list.
func (c *Container) names(key []byte) ([]string, error) {
	pt, err := Decrypt(c.Index.Ciphertext, c.Index.IV, key)
	if err != nil {
		return nil, err
	}
	defer Zero(pt)

	var idx index
	if err := bson.Unmarshal(pt, &idx); err != nil {
		return nil, fmt.Errorf("%w: index: %v", ErrSerialization, err)
	}
	if len(idx.Names) != len(c.Entries) {
		return nil, fmt.Errorf("%w: %d names, %d entries", ErrCorrupt, len(idx.Names), len(c.Entries))
	}
	return idx.Names, nil
}

// sealIndex encrypts names under a freshly generated IV.
func sealIndex(names []string, key []byte) (Sealed, error) {
	pt, err := bson.Marshal(index{Names: names})
	if err != nil {
		return Sealed{}, fmt.Errorf("%w: index: %v", ErrSerialization, err)
	}
	defer Zero(pt)
	return seal(pt, key)
}

func seal(pt, key []byte) (Sealed, error) {
	iv, err := GenerateBytes(IVLen)
	if err != nil {
		return Sealed{}, err
	}
	ct, err := Encrypt(pt, iv, key)
	if err != nil {
		return Sealed{}, err
	}
	return Sealed{IV: iv, Ciphertext: ct}, nil
}

// List returns entry names in stored order.
func (c *Container) List(password []byte) ([]string, error) {
	key, err := c.key(password)
	if err != nil {
		return nil, err
	}
	defer Zero(key)
	return c.list(key)
}

// AddEntry seals entry under name. It fails with ErrDuplicateEntry if name
// is taken. The container is only modified once every step has succeeded.
func (c *Container) AddEntry(password []byte, name string, entry OpenEntry) error {
	key, err := c.key(password)
	if err != nil {
		return err
	}
	defer Zero(key)
	return c.addEntry(key, name, entry)
}

// RemoveEntry deletes the entry stored under name. Removing a name that is
// not present succeeds without changing anything.
func (c *Container) RemoveEntry(password []byte, name string) error {
	key, err := c.key(password)
	if err != nil {
		return err
	}
	defer Zero(key)
	return c.removeEntry(key, name)
}

// GetEntry decrypts the entry stored under name. It returns nil, nil when
// there is no such entry.
func (c *Container) GetEntry(password []byte, name string) (*OpenEntry, error) {
	key, err := c.key(password)
	if err != nil {
		return nil, err
	}
	defer Zero(key)
	return c.getEntry(key, name)
}

func (c *Container) list(key []byte) ([]string, error) {
	names, err := c.names(key)
	if err != nil {
		return nil, err
	}
	return append(make([]string, 0, len(names)), names...), nil
}

func (c *Container) addEntry(key []byte, name string, entry OpenEntry) error {
	names, err := c.names(key)
	if err != nil {
		return err
	}
	if slices.Contains(names, name) {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, name)
	}

	pt, err := bson.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: entry: %v", ErrSerialization, err)
	}
	sealed, err := seal(pt, key)
	Zero(pt)
	if err != nil {
		return err
	}
	idx, err := sealIndex(append(slices.Clip(names), name), key)
	if err != nil {
		return err
	}

	c.Entries = append(c.Entries, sealed)
	c.Index = idx
	return nil
}

func (c *Container) removeEntry(key []byte, name string) error {
	names, err := c.names(key)
	if err != nil {
		return err
	}
	pos := slices.Index(names, name)
	if pos < 0 {
		return nil
	}

	idx, err := sealIndex(slices.Delete(names, pos, pos+1), key)
	if err != nil {
		return err
	}

	c.Entries = slices.Delete(c.Entries, pos, pos+1)
	c.Index = idx
	return nil
}

func (c *Container) getEntry(key []byte, name string) (*OpenEntry, error) {
	names, err := c.names(key)
	if err != nil {
		return nil, err
	}
	pos := slices.Index(names, name)
	if pos < 0 {
		return nil, nil
	}

	sealed := c.Entries[pos]
	pt, err := Decrypt(sealed.Ciphertext, sealed.IV, key)
	if err != nil {
		return nil, err
	}
	defer Zero(pt)

	var entry OpenEntry
	if err := bson.Unmarshal(pt, &entry); err != nil {
		return nil, fmt.Errorf("%w: entry %q: %v", ErrSerialization, name, err)
	}
	return &entry, nil
}
