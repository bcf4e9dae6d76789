package vault

// Session is a container unlocked with a verified password. It holds the
// derived key, so a command that reads and writes several times runs the
// KDF only once. Close wipes the key.
type Session struct {
	c   *Container
	key []byte
}

// Unlock checks password against the header verifier and derives the key
// in the same KDF run. A wrong password fails with ErrWrongPassword.
func (c *Container) Unlock(password []byte) (*Session, error) {
	if c.Header.KDF == nil {
		sum := Hash(password, c.Header.Salt)
		if !constantTimeEqual(sum[:], c.Header.Verifier) {
			return nil, ErrWrongPassword
		}
		return &Session{c: c, key: sum[:]}, nil
	}

	key, seed, err := stretch(password, c.Header.Salt, c.Header.KDF)
	if err != nil {
		return nil, err
	}
	verifier := Hash(seed, c.Header.Salt)
	Zero(seed)
	if !constantTimeEqual(verifier[:], c.Header.Verifier) {
		Zero(key)
		return nil, ErrWrongPassword
	}
	return &Session{c: c, key: key}, nil
}

func (s *Session) Container() *Container { return s.c }

func (s *Session) List() ([]string, error) {
	return s.c.list(s.key)
}

func (s *Session) AddEntry(name string, entry OpenEntry) error {
	return s.c.addEntry(s.key, name, entry)
}

func (s *Session) RemoveEntry(name string) error {
	return s.c.removeEntry(s.key, name)
}

func (s *Session) GetEntry(name string) (*OpenEntry, error) {
	return s.c.getEntry(s.key, name)
}

// Close wipes the key. The session must not be used afterwards.
func (s *Session) Close() {
	Zero(s.key)
	s.key = nil
}
