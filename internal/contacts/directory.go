package contacts

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrDuplicateName = errors.New("duplicate contact name")

// Contact is a payee the user can address by name.
type Contact struct {
	ID    int    `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	UPIID string `yaml:"upi_id" json:"upi_id"`
}

// Directory is an ordered, read-only list of contacts. Order matters: the
// first contact whose name appears in an utterance wins.
type Directory struct {
	contacts []Contact
}

type file struct {
	Contacts []Contact `yaml:"contacts"`
}

// New validates list and returns a Directory holding a private copy of it.
func New(list []Contact) (Directory, error) {
	seen := make(map[string]struct{}, len(list))
	ids := make(map[int]struct{}, len(list))
	for i, c := range list {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return Directory{}, fmt.Errorf("contact %d: name must not be empty", i)
		}
		if strings.TrimSpace(c.UPIID) == "" {
			return Directory{}, fmt.Errorf("contact %q: upi_id must not be empty", name)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return Directory{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		seen[key] = struct{}{}
		if _, dup := ids[c.ID]; dup {
			return Directory{}, fmt.Errorf("contact %q: duplicate id %d", name, c.ID)
		}
		ids[c.ID] = struct{}{}
	}
	return Directory{contacts: append([]Contact(nil), list...)}, nil
}

// MustNew is New for static lists known to be valid.
func MustNew(list []Contact) Directory {
	d, err := New(list)
	if err != nil {
		panic(err)
	}
	return d
}

// Load reads a YAML contact file of the form `contacts: [{id, name, upi_id}]`.
func Load(path string) (Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Directory{}, fmt.Errorf("read contacts file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Directory{}, fmt.Errorf("parse contacts file: %w", err)
	}
	if len(f.Contacts) == 0 {
		return Directory{}, errors.New("contacts file lists no contacts")
	}
	return New(f.Contacts)
}

// Default is the directory used when no contacts file is configured.
func Default() Directory {
	return MustNew([]Contact{
		{ID: 1, Name: "Ram", UPIID: "ram@paytm"},
		{ID: 2, Name: "John", UPIID: "john@phonepe"},
		{ID: 3, Name: "Sarah", UPIID: "sarah@okaxis"},
		{ID: 4, Name: "Mike", UPIID: "mike@paytm"},
		{ID: 5, Name: "Priya", UPIID: "priya@googlepay"},
		{ID: 6, Name: "Amit", UPIID: "amit@paytm"},
		{ID: 7, Name: "Lisa", UPIID: "lisa@phonepe"},
		{ID: 8, Name: "Raj", UPIID: "raj@bhim"},
		{ID: 9, Name: "Emma", UPIID: "emma@okaxis"},
		{ID: 10, Name: "David", UPIID: "david@paytm"},
	})
}

// All returns the contacts in directory order.
func (d Directory) All() []Contact {
	return append([]Contact(nil), d.contacts...)
}

func (d Directory) Len() int { return len(d.contacts) }

// ByID looks a contact up by its id.
func (d Directory) ByID(id int) (Contact, bool) {
	for _, c := range d.contacts {
		if c.ID == id {
			return c, true
		}
	}
	return Contact{}, false
}
