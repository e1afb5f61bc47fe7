package merchant

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// StoreLocation scopes a certificate store to the current user or the machine.
type StoreLocation string

const (
	StoreLocationCurrentUser  StoreLocation = "CurrentUser"
	StoreLocationLocalMachine StoreLocation = "LocalMachine"
)

// StoreNameMy is the personal store holding certificates with private keys.
const StoreNameMy = "My"

// ParseStoreLocation accepts the location names case-insensitively; empty means CurrentUser.
func ParseStoreLocation(s string) (StoreLocation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "currentuser", "current_user":
		return StoreLocationCurrentUser, nil
	case "localmachine", "local_machine":
		return StoreLocationLocalMachine, nil
	default:
		return "", errors.Errorf("unknown certificate store location %q", s)
	}
}

// Store is a directory of PEM bundles and PKCS#12 files.
//
// Files are scanned in lexical order; files that cannot be decoded are skipped.
type Store struct {
	Name     string
	Location StoreLocation
	Dir      string
	// Password opens PKCS#12 files in the store.
	Password string
}

// OpenStore resolves the directory for location, or uses dir when set.
func OpenStore(location StoreLocation, dir string) (*Store, error) {
	if location == "" {
		location = StoreLocationCurrentUser
	}
	if strings.TrimSpace(dir) == "" {
		var err error
		dir, err = defaultStoreDir(location)
		if err != nil {
			return nil, &ConfigurationError{Reason: "cannot locate certificate store", Err: err}
		}
	}
	return &Store{Name: StoreNameMy, Location: location, Dir: dir}, nil
}

func defaultStoreDir(location StoreLocation) (string, error) {
	switch location {
	case StoreLocationCurrentUser:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "resolve home directory")
		}
		return filepath.Join(home, ".applepay", "certs"), nil
	case StoreLocationLocalMachine:
		return filepath.Join(string(filepath.Separator), "etc", "applepay", "certs"), nil
	default:
		return "", errors.Errorf("unknown certificate store location %q", location)
	}
}

// FindByThumbprint returns the first certificate whose SHA-1 thumbprint matches.
func (s *Store) FindByThumbprint(thumbprint string) (*Certificate, error) {
	want := NormalizeThumbprint(thumbprint)
	notFound := &CertificateNotFoundError{
		Thumbprint: thumbprint,
		Store:      s.Name,
		Location:   s.Location,
		Path:       s.Dir,
	}
	if want == "" {
		return nil, notFound
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound
		}
		return nil, &CertificateLoadError{Path: s.Dir, Err: errors.Wrap(err, "read certificate store")}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		cert, ok := s.load(filepath.Join(s.Dir, name))
		if !ok {
			continue
		}
		if cert.Thumbprint() == want {
			return cert, nil
		}
	}
	return nil, notFound
}

func (s *Store) load(path string) (*Certificate, bool) {
	var parse func([]byte) (*Certificate, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pem", ".crt", ".cer":
		parse = parsePEMBundle
	case ".pfx", ".p12":
		parse = func(raw []byte) (*Certificate, error) { return parsePFX(raw, s.Password) }
	default:
		return nil, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	cert, err := parse(raw)
	if err != nil {
		return nil, false
	}
	return cert, true
}
