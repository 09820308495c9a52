package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultKeyfile is the name of the key file inside a data directory.
const DefaultKeyfile = "priv_key"

// SimpleKeyfile stores a private key as a raw hex dump in a file readable only
// by its owner.
type SimpleKeyfile struct {
	l       sync.Mutex
	keyfile string
}

// NewSimpleKeyfile creates a SimpleKeyfile backed by the given path.
func NewSimpleKeyfile(keyfile string) *SimpleKeyfile {
	return &SimpleKeyfile{
		keyfile: keyfile,
	}
}

// checkPermissions fails when group or others have any access to the file.
func (k *SimpleKeyfile) checkPermissions() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("%s permissions should exclude 'groups' and 'others'. Got %o", k.keyfile, perm)
	}

	return nil
}

// ReadKey reads and parses the key.
func (k *SimpleKeyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.checkPermissions(); err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, err
	}

	return ParsePrivateKey(raw)
}

// WriteKey writes the key, creating parent directories as needed.
func (k *SimpleKeyfile) WriteKey(key *ecdsa.PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	if err := os.MkdirAll(filepath.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(k.keyfile, []byte(PrivateKeyHex(key)), 0600)
}
