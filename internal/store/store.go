package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const schemaVersion = 1

var (
	// ErrNotFound is returned when removing an email that is not in the store
	ErrNotFound = errors.New("account not found")

	// ErrEmptyStore is returned when exporting from a store with no accounts
	ErrEmptyStore = errors.New("credential store is empty")

	// ErrInvalidAmount is returned when the export amount is less than 1
	ErrInvalidAmount = errors.New("export amount must be at least 1")
)

// FileFormatError reports a persisted document that could not be decoded.
// A missing file is not a format error; it loads as an empty document.
type FileFormatError struct {
	Path string
	Err  error
}

func (e *FileFormatError) Error() string {
	return fmt.Sprintf("malformed store document %s: %v", e.Path, e.Err)
}

func (e *FileFormatError) Unwrap() error { return e.Err }

// Record is one stored OAuth credential. RefreshToken and ClientID are
// opaque; Password is kept only when the account was added via bulk import.
type Record struct {
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	Password     string `json:"password,omitempty"`
}

// Account pairs a lowercase account email with its credential record
type Account struct {
	Email  string
	Record Record
}

// Skip explains why one bulk-merge candidate was not added
type Skip struct {
	Email  string
	Reason string
}

// storeDoc is the on-disk shape of the active store. Accounts preserves the
// insertion order of the underlying JSON object, which defines the order
// used by listing and export.
type storeDoc struct {
	Version  int                                    `json:"version"`
	Accounts *orderedmap.OrderedMap[string, Record] `json:"accounts"`
}

// exportedDoc is the on-disk shape of the exported set
type exportedDoc struct {
	Version  int      `json:"version"`
	Exported []string `json:"exported"`
}

// Store owns the two persisted documents: the active email -> credential
// mapping and the set of emails that have ever been dispensed. Every
// read-modify-write sequence runs under the mutex plus a file lock, so
// concurrent operations never overwrite each other's changes. Network calls
// are never made while the lock is held.
type Store struct {
	mu sync.Mutex
	fl *flock.Flock

	accountsPath string
	exportedPath string
}

// New creates a Store rooted at dataDir, creating the directory if needed,
// and reconciles the two documents: an email present in both the exported
// set and the active store is dropped from the active store. Export writes
// the exported set first, so a crash between its two writes heals here.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		fl:           flock.New(filepath.Join(dataDir, ".store.lock")),
		accountsPath: filepath.Join(dataDir, "accounts.json"),
		exportedPath: filepath.Join(dataDir, "exported.json"),
	}

	if err := s.reconcile(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) lock() error {
	s.mu.Lock()
	if err := s.fl.Lock(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to acquire store lock: %w", err)
	}
	return nil
}

func (s *Store) unlock() {
	if err := s.fl.Unlock(); err != nil {
		logrus.Warnf("Failed to release store lock: %v", err)
	}
	s.mu.Unlock()
}

// reconcile removes any active account whose email already appears in the
// exported set, preferring the exported set as the source of truth.
func (s *Store) reconcile() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	accounts, err := s.loadAccounts()
	if err != nil {
		return err
	}
	exported, err := s.loadExported()
	if err != nil {
		return err
	}

	changed := false
	for _, email := range exported {
		if _, present := accounts.Delete(email); present {
			logrus.Warnf("Reconciled store: dropped previously exported account %s from active store", email)
			changed = true
		}
	}

	if changed {
		return s.saveAccounts(accounts)
	}
	return nil
}

// Accounts returns every active account in stored order
func (s *Store) Accounts() ([]Account, error) {
	accounts, err := s.loadAccounts()
	if err != nil {
		return nil, err
	}

	out := make([]Account, 0, accounts.Len())
	for pair := accounts.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Account{Email: pair.Key, Record: pair.Value})
	}
	return out, nil
}

// Get returns the record stored for email, if any
func (s *Store) Get(email string) (Record, bool, error) {
	accounts, err := s.loadAccounts()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := accounts.Get(normalize(email))
	return rec, ok, nil
}

// IsExported reports whether email has ever been dispensed
func (s *Store) IsExported(email string) (bool, error) {
	exported, err := s.loadExported()
	if err != nil {
		return false, err
	}
	return contains(exported, normalize(email)), nil
}

// Upsert merges one record into the active store, keyed by the lowercased
// email. Last write wins for an existing email.
func (s *Store) Upsert(email string, rec Record) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	accounts, err := s.loadAccounts()
	if err != nil {
		return err
	}

	accounts.Set(normalize(email), rec)
	return s.saveAccounts(accounts)
}

// BulkMerge inserts candidates that are neither already saved nor previously
// exported. It returns the number added and the skip reasons in candidate
// order. Valid candidates commit even when others are skipped.
func (s *Store) BulkMerge(candidates []Account) (int, []Skip, error) {
	if err := s.lock(); err != nil {
		return 0, nil, err
	}
	defer s.unlock()

	accounts, err := s.loadAccounts()
	if err != nil {
		return 0, nil, err
	}
	exported, err := s.loadExported()
	if err != nil {
		return 0, nil, err
	}

	added := 0
	var skipped []Skip
	for _, cand := range candidates {
		email := normalize(cand.Email)
		if _, ok := accounts.Get(email); ok {
			skipped = append(skipped, Skip{Email: email, Reason: "already saved"})
			continue
		}
		if contains(exported, email) {
			skipped = append(skipped, Skip{Email: email, Reason: "previously exported"})
			continue
		}
		accounts.Set(email, cand.Record)
		added++
	}

	if added > 0 {
		if err := s.saveAccounts(accounts); err != nil {
			return 0, nil, err
		}
	}
	return added, skipped, nil
}

// Remove deletes one account. It returns ErrNotFound if the email is not in
// the active store.
func (s *Store) Remove(email string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	accounts, err := s.loadAccounts()
	if err != nil {
		return err
	}

	if _, present := accounts.Delete(normalize(email)); !present {
		return ErrNotFound
	}
	return s.saveAccounts(accounts)
}

// Export dispenses up to amount accounts, oldest-stored first. Dispensed
// accounts leave the active store and their emails join the exported set
// permanently; a dispensed email can never be re-imported. The exported set
// is written before the active store so that a crash between the two writes
// is healed by reconcile rather than resurrecting a dispensed credential.
func (s *Store) Export(amount int) ([]Account, int, error) {
	if amount < 1 {
		return nil, 0, ErrInvalidAmount
	}

	if err := s.lock(); err != nil {
		return nil, 0, err
	}
	defer s.unlock()

	accounts, err := s.loadAccounts()
	if err != nil {
		return nil, 0, err
	}
	if accounts.Len() == 0 {
		return nil, 0, ErrEmptyStore
	}
	exported, err := s.loadExported()
	if err != nil {
		return nil, 0, err
	}

	if amount > accounts.Len() {
		amount = accounts.Len()
	}

	dispensed := make([]Account, 0, amount)
	for pair := accounts.Oldest(); pair != nil && len(dispensed) < amount; pair = pair.Next() {
		dispensed = append(dispensed, Account{Email: pair.Key, Record: pair.Value})
	}
	for _, acct := range dispensed {
		accounts.Delete(acct.Email)
		if !contains(exported, acct.Email) {
			exported = append(exported, acct.Email)
		}
	}

	if err := s.saveExported(exported); err != nil {
		return nil, 0, err
	}
	if err := s.saveAccounts(accounts); err != nil {
		return nil, 0, err
	}

	return dispensed, accounts.Len(), nil
}

func (s *Store) loadAccounts() (*orderedmap.OrderedMap[string, Record], error) {
	data, err := os.ReadFile(s.accountsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return orderedmap.New[string, Record](), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.accountsPath, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return orderedmap.New[string, Record](), nil
	}

	// A pre-versioning document is a bare email -> record object; migrate it
	// in place on the next write.
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &FileFormatError{Path: s.accountsPath, Err: err}
	}

	if probe.Version == nil {
		legacy := orderedmap.New[string, Record]()
		if err := json.Unmarshal(data, legacy); err != nil {
			return nil, &FileFormatError{Path: s.accountsPath, Err: err}
		}
		return legacy, nil
	}

	var doc storeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &FileFormatError{Path: s.accountsPath, Err: err}
	}
	if doc.Version != schemaVersion {
		return nil, &FileFormatError{Path: s.accountsPath, Err: fmt.Errorf("unsupported schema version %d", doc.Version)}
	}
	if doc.Accounts == nil {
		doc.Accounts = orderedmap.New[string, Record]()
	}
	return doc.Accounts, nil
}

func (s *Store) saveAccounts(accounts *orderedmap.OrderedMap[string, Record]) error {
	doc := storeDoc{Version: schemaVersion, Accounts: accounts}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode accounts document: %w", err)
	}
	if err := atomic.WriteFile(s.accountsPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.accountsPath, err)
	}
	return nil
}

func (s *Store) loadExported() ([]string, error) {
	data, err := os.ReadFile(s.exportedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.exportedPath, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc exportedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &FileFormatError{Path: s.exportedPath, Err: err}
	}
	return doc.Exported, nil
}

func (s *Store) saveExported(exported []string) error {
	doc := exportedDoc{Version: schemaVersion, Exported: exported}
	if doc.Exported == nil {
		doc.Exported = []string{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode exported document: %w", err)
	}
	if err := atomic.WriteFile(s.exportedPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.exportedPath, err)
	}
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func contains(list []string, email string) bool {
	for _, e := range list {
		if e == email {
			return true
		}
	}
	return false
}
