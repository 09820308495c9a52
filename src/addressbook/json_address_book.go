package addressbook

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"sync"

	"github.com/mosaicnetworks/swirl/src/common"
)

// JSONFile is the name of the address book file inside a data directory.
const JSONFile = "addressbook.json"

// JSONAddressBook persists an address book as a JSON file.
type JSONAddressBook struct {
	l    sync.Mutex
	path string
}

// NewJSONAddressBook points to the address book file of a data directory.
func NewJSONAddressBook(base string) *JSONAddressBook {
	return &JSONAddressBook{
		path: filepath.Join(base, JSONFile),
	}
}

// AddressBook parses the underlying file.
func (j *JSONAddressBook) AddressBook() (*AddressBook, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, common.NewStoreErr("AddressBook", common.Empty, j.path)
	}

	var addresses []*Address
	if err := json.NewDecoder(bytes.NewReader(buf)).Decode(&addresses); err != nil {
		return nil, err
	}

	return New(addresses)
}

// Write persists a list of addresses.
func (j *JSONAddressBook) Write(addresses []*Address) error {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := json.MarshalIndent(addresses, "", "  ")
	if err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf, 0644)
}
