package vault

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/fahmaliyi/kapa/codec"
)

const testPassword = "dummy-pass"

func testKDF() *KDFParams {
	return &KDFParams{Algo: KDFArgon2id, Time: 1, Memory: 64, Threads: 1}
}

func pw() []byte { return []byte(testPassword) }

func newTestContainer(t *testing.T) *Container {
	t.Helper()
	c, err := TryNew(pw(), testKDF())
	if err != nil {
		t.Fatalf("TryNew: %v", err)
	}
	return c
}

// newLegacyContainer builds a container the way releases without stored
// KDF parameters did: verifier and key are both Hash(password, salt).
func newLegacyContainer(t *testing.T) *Container {
	t.Helper()
	salt, err := GenerateBytes(SaltLen)
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	sum := Hash(pw(), salt)
	idx, err := sealIndex(nil, sum[:])
	if err != nil {
		t.Fatalf("seal index: %v", err)
	}
	return &Container{Header: Header{Verifier: sum[:], Salt: salt}, Index: idx, Entries: []Sealed{}}
}

func dummyEntry() OpenEntry {
	return OpenEntry{Desc: "description", User: "user", Email: "email", Notes: "notes", Pw: "password"}
}

func addEntry(t *testing.T, c *Container, name string, e OpenEntry) {
	t.Helper()
	if err := c.AddEntry(pw(), name, e); err != nil {
		t.Fatalf("AddEntry(%q): %v", name, err)
	}
}

func checkCorrespondence(t *testing.T, c *Container) {
	t.Helper()
	names, err := c.List(pw())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != len(c.Entries) {
		t.Fatalf("%d names but %d entries", len(names), len(c.Entries))
	}
}

func TestTryNew(t *testing.T) {
	c := newTestContainer(t)

	if len(c.Header.Salt) != SaltLen || len(c.Header.Verifier) != VerifierLen || len(c.Index.IV) != IVLen {
		t.Fatalf("unexpected field widths: salt %d verifier %d iv %d", len(c.Header.Salt), len(c.Header.Verifier), len(c.Index.IV))
	}
	if c.Header.KDF == nil || *c.Header.KDF != *testKDF() {
		t.Fatalf("header kdf = %+v", c.Header.KDF)
	}
	names, err := c.List(pw())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if names == nil || len(names) != 0 {
		t.Fatalf("new container lists %v", names)
	}
}

func TestTryNewRandomnessFailure(t *testing.T) {
	withRandReader(t, failingReader{})
	if _, err := TryNew(pw(), testKDF()); !errors.Is(err, ErrRandomness) {
		t.Fatalf("expected ErrRandomness, got %v", err)
	}
}

func TestVerifyPassword(t *testing.T) {
	for name, c := range map[string]*Container{"argon2id": newTestContainer(t), "legacy": newLegacyContainer(t)} {
		t.Run(name, func(t *testing.T) {
			ok, err := c.VerifyPassword(pw())
			if err != nil || !ok {
				t.Fatalf("correct password rejected: ok=%v err=%v", ok, err)
			}
			ok, err = c.VerifyPassword([]byte("wrong-pass"))
			if err != nil || ok {
				t.Fatalf("wrong password accepted: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestScenario(t *testing.T) {
	c := newTestContainer(t)
	e := OpenEntry{Desc: "d", User: "u", Email: "e", Notes: "n", Pw: "secret"}

	addEntry(t, c, "entry1", e)

	names, err := c.List(pw())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !slices.Equal(names, []string{"entry1"}) {
		t.Fatalf("List = %v, want [entry1]", names)
	}

	got, err := c.GetEntry(pw(), "entry1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got == nil || *got != e {
		t.Fatalf("GetEntry = %+v, want %+v", got, e)
	}

	if err := c.RemoveEntry(pw(), "entry1"); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	names, err = c.List(pw())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("List after remove = %v, want []", names)
	}
}

func TestAddEntryRoundTrip(t *testing.T) {
	for name, c := range map[string]*Container{"argon2id": newTestContainer(t), "legacy": newLegacyContainer(t)} {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				e := dummyEntry()
				e.Pw = fmt.Sprintf("password-%d", i)
				n := fmt.Sprintf("entry%d", i)
				addEntry(t, c, n, e)

				got, err := c.GetEntry(pw(), n)
				if err != nil {
					t.Fatalf("GetEntry(%q): %v", n, err)
				}
				if got == nil || *got != e {
					t.Fatalf("GetEntry(%q) = %+v, want %+v", n, got, e)
				}
			}
			names, _ := c.List(pw())
			want := []string{"entry0", "entry1", "entry2", "entry3", "entry4"}
			if !slices.Equal(names, want) {
				t.Fatalf("List = %v, want insertion order %v", names, want)
			}
		})
	}
}

func TestAddEntryDuplicateLeavesContainerUnchanged(t *testing.T) {
	c := newTestContainer(t)
	addEntry(t, c, "entry1", dummyEntry())

	before, err := c.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	other := dummyEntry()
	other.Pw = "another"
	err = c.AddEntry(pw(), "entry1", other)
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}

	after, _ := c.Bytes()
	if !bytes.Equal(before, after) {
		t.Fatal("failed AddEntry modified the container")
	}
	got, _ := c.GetEntry(pw(), "entry1")
	if got.Pw != "password" {
		t.Fatalf("original entry overwritten: %+v", got)
	}
}

func TestAddEntryRandomnessFailureLeavesContainerUnchanged(t *testing.T) {
	c := newTestContainer(t)
	addEntry(t, c, "entry1", dummyEntry())
	before, _ := c.Bytes()

	withRandReader(t, failingReader{})
	if err := c.AddEntry(pw(), "entry2", dummyEntry()); !errors.Is(err, ErrRandomness) {
		t.Fatalf("expected ErrRandomness, got %v", err)
	}
	if err := c.RemoveEntry(pw(), "entry1"); !errors.Is(err, ErrRandomness) {
		t.Fatalf("expected ErrRandomness, got %v", err)
	}

	after, _ := c.Bytes()
	if !bytes.Equal(before, after) {
		t.Fatal("failed mutation modified the container")
	}
}

func TestRemoveEntryAbsentIsNoop(t *testing.T) {
	c := newTestContainer(t)
	addEntry(t, c, "entry1", dummyEntry())
	before, _ := c.Bytes()

	if err := c.RemoveEntry(pw(), "missing"); err != nil {
		t.Fatalf("RemoveEntry(missing): %v", err)
	}
	after, _ := c.Bytes()
	if !bytes.Equal(before, after) {
		t.Fatal("removing an absent entry changed the container")
	}
}

func TestRemovalIndependence(t *testing.T) {
	const n = 6
	for k := 0; k < n; k++ {
		t.Run(fmt.Sprintf("remove_%d", k), func(t *testing.T) {
			c := newTestContainer(t)
			entries := make(map[string]OpenEntry)
			for i := 0; i < n; i++ {
				e := dummyEntry()
				e.Desc = fmt.Sprintf("desc %d", i)
				e.Pw = fmt.Sprintf("pw %d", i)
				name := fmt.Sprintf("entry%d", i)
				entries[name] = e
				addEntry(t, c, name, e)
			}

			removed := fmt.Sprintf("entry%d", k)
			if err := c.RemoveEntry(pw(), removed); err != nil {
				t.Fatalf("RemoveEntry: %v", err)
			}
			checkCorrespondence(t, c)

			for name, want := range entries {
				got, err := c.GetEntry(pw(), name)
				if err != nil {
					t.Fatalf("GetEntry(%q): %v", name, err)
				}
				if name == removed {
					if got != nil {
						t.Fatalf("removed entry %q still retrievable", name)
					}
					continue
				}
				if got == nil || *got != want {
					t.Fatalf("GetEntry(%q) = %+v, want %+v", name, got, want)
				}
			}
		})
	}
}

func TestIndexCorrespondenceRandomOps(t *testing.T) {
	c := newTestContainer(t)
	r := rand.New(rand.NewSource(42))
	present := map[string]bool{}

	for i := 0; i < 60; i++ {
		name := fmt.Sprintf("entry%d", r.Intn(10))
		if r.Intn(2) == 0 {
			err := c.AddEntry(pw(), name, dummyEntry())
			switch {
			case present[name] && !errors.Is(err, ErrDuplicateEntry):
				t.Fatalf("op %d: duplicate add of %q returned %v", i, name, err)
			case !present[name] && err != nil:
				t.Fatalf("op %d: add %q: %v", i, name, err)
			}
			present[name] = true
		} else {
			if err := c.RemoveEntry(pw(), name); err != nil {
				t.Fatalf("op %d: remove %q: %v", i, name, err)
			}
			delete(present, name)
		}
		checkCorrespondence(t, c)
		if c.Len() != len(present) {
			t.Fatalf("op %d: Len = %d, want %d", i, c.Len(), len(present))
		}
	}
}

func TestIndexIVFreshness(t *testing.T) {
	c := newTestContainer(t)
	seen := [][]byte{c.Index.IV}

	for i := 0; i < 5; i++ {
		addEntry(t, c, fmt.Sprintf("entry%d", i), dummyEntry())
		seen = append(seen, c.Index.IV)
	}
	for i := 0; i < 5; i++ {
		if err := c.RemoveEntry(pw(), fmt.Sprintf("entry%d", i)); err != nil {
			t.Fatalf("RemoveEntry: %v", err)
		}
		seen = append(seen, c.Index.IV)
	}

	for i := range seen {
		for j := i + 1; j < len(seen); j++ {
			if bytes.Equal(seen[i], seen[j]) {
				t.Fatalf("index IV reused between re-encryption %d and %d", i, j)
			}
		}
	}
}

func TestEntryIVsDistinct(t *testing.T) {
	c := newTestContainer(t)
	addEntry(t, c, "a", dummyEntry())
	addEntry(t, c, "b", dummyEntry())
	if bytes.Equal(c.Entries[0].IV, c.Entries[1].IV) || bytes.Equal(c.Entries[0].IV, c.Index.IV) {
		t.Fatal("IV shared between ciphertexts")
	}
	if bytes.Equal(c.Entries[0].Ciphertext, c.Entries[1].Ciphertext) {
		t.Fatal("identical entries encrypted to identical ciphertext")
	}
}

func TestGetEntryAbsent(t *testing.T) {
	c := newTestContainer(t)
	addEntry(t, c, "entry1", dummyEntry())
	got, err := c.GetEntry(pw(), "nope")
	if err != nil || got != nil {
		t.Fatalf("GetEntry(absent) = %v, %v; want nil, nil", got, err)
	}
}

func TestWrongPasswordFails(t *testing.T) {
	for name, c := range map[string]*Container{"argon2id": newTestContainer(t), "legacy": newLegacyContainer(t)} {
		t.Run(name, func(t *testing.T) {
			addEntry(t, c, "entry1", dummyEntry())
			wrong := []byte("not-the-pass")

			isDecodeFailure := func(err error) bool {
				return errors.Is(err, ErrCrypto) || errors.Is(err, ErrSerialization) || errors.Is(err, ErrCorrupt)
			}
			if _, err := c.List(wrong); !isDecodeFailure(err) {
				t.Fatalf("List with wrong password: %v", err)
			}
			got, err := c.GetEntry(wrong, "entry1")
			if !isDecodeFailure(err) || got != nil {
				t.Fatalf("GetEntry with wrong password = %v, %v", got, err)
			}
			if err := c.AddEntry(wrong, "entry2", dummyEntry()); !isDecodeFailure(err) {
				t.Fatalf("AddEntry with wrong password: %v", err)
			}
			if c.Len() != 1 {
				t.Fatalf("Len = %d after failed add", c.Len())
			}
		})
	}
}

func TestCorruptIndexDetected(t *testing.T) {
	c := newTestContainer(t)
	addEntry(t, c, "entry1", dummyEntry())
	c.Entries = append(c.Entries, c.Entries[0])

	if _, err := c.List(pw()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestBytesLoadRoundTrip(t *testing.T) {
	c := newTestContainer(t)
	addEntry(t, c, "entry1", dummyEntry())

	b, err := c.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !codec.HasSignature(b) {
		t.Fatal("encoded container has no envelope signature")
	}
	if got := codec.GetVersion(b); got != codec.Version {
		t.Fatalf("GetVersion = %q, want %q", got, codec.Version)
	}

	loaded, err := Load(b)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := loaded.GetEntry(pw(), "entry1")
	if err != nil || got == nil || *got != dummyEntry() {
		t.Fatalf("GetEntry after reload = %+v, %v", got, err)
	}
	if *loaded.Header.KDF != *c.Header.KDF {
		t.Fatalf("kdf params lost: %+v", loaded.Header.KDF)
	}
}

func TestLoadLegacyFile(t *testing.T) {
	c := newLegacyContainer(t)
	addEntry(t, c, "entry1", dummyEntry())

	b, err := c.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	// A file from before version tracking is the bare payload.
	legacy := b[7:]

	if got := codec.GetVersion(legacy); got != "<= 0.8.5" {
		t.Fatalf("GetVersion = %q", got)
	}
	loaded, err := Load(legacy)
	if err != nil {
		t.Fatalf("Load legacy: %v", err)
	}
	if loaded.Header.KDF != nil {
		t.Fatalf("legacy header gained kdf params: %+v", loaded.Header.KDF)
	}
	ok, err := loaded.VerifyPassword(pw())
	if err != nil || !ok {
		t.Fatalf("VerifyPassword on legacy file: %v %v", ok, err)
	}
	got, err := loaded.GetEntry(pw(), "entry1")
	if err != nil || got == nil || *got != dummyEntry() {
		t.Fatalf("GetEntry on legacy file = %+v, %v", got, err)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	c := newTestContainer(t)
	c.Header.Salt = c.Header.Salt[:8]
	b, err := c.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if _, err := Load(b); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
	_, err = Load([]byte{1, 2, 3})
	if !errors.Is(err, ErrSerialization) || !errors.Is(err, codec.ErrSerialization) {
		t.Fatalf("expected vault and codec ErrSerialization for garbage, got %v", err)
	}
}

func TestEncodedSizeTracksEntries(t *testing.T) {
	c := newTestContainer(t)
	prev, _ := c.Bytes()
	for i := 0; i < 5; i++ {
		addEntry(t, c, fmt.Sprintf("entry%d", i), dummyEntry())
		cur, _ := c.Bytes()
		if bytes.Equal(cur, prev) || len(cur) <= len(prev) {
			t.Fatalf("add %d: encoded size %d did not grow from %d", i, len(cur), len(prev))
		}
		prev = cur
	}
	for i := 4; i >= 0; i-- {
		if err := c.RemoveEntry(pw(), fmt.Sprintf("entry%d", i)); err != nil {
			t.Fatalf("RemoveEntry: %v", err)
		}
		cur, _ := c.Bytes()
		if len(cur) >= len(prev) {
			t.Fatalf("remove %d: encoded size %d did not shrink from %d", i, len(cur), len(prev))
		}
		prev = cur
	}
}
