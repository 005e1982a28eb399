// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb" // Register the bolt driver.
	"github.com/zecsuite/zecwallet/netparams"
)

const (
	// WalletDBName specified the database filename for the wallet.
	WalletDBName = "wallet.db"

	// DefaultDBTimeout is the default timeout value when opening the wallet
	// database.
	DefaultDBTimeout = 60 * time.Second
)

var (
	// ErrLoaded describes the error condition of attempting to load or
	// create a wallet when the loader has already done so.
	ErrLoaded = errors.New("wallet already loaded")

	// ErrNotLoaded describes the error condition of attempting to close a
	// loaded wallet when a wallet has not been loaded.
	ErrNotLoaded = errors.New("wallet is not loaded")

	// ErrExists describes the error condition of attempting to create a new
	// wallet when one exists already.
	ErrExists = errors.New("wallet already exists")
)

var (
	// walletBucketKey is the top level bucket holding the wallet.
	walletBucketKey = []byte("zecwallet")

	// snapshotKey stores the serialized wallet.
	snapshotKey = []byte("snapshot")
)

// Loader implements the creating of new and opening of existing wallets,
// while providing a callback system for other subsystems to handle the
// loading of a wallet.
//
// Loader is safe for concurrent access.
type Loader struct {
	callbacks      []func(*Wallet)
	params         *netparams.Params
	dbDirPath      string
	noFreelistSync bool
	timeout        time.Duration
	opts           []Option
	wallet         *Wallet
	db             walletdb.DB
	mu             sync.Mutex
}

// NewLoader constructs a Loader for wallets stored under dbDirPath. The
// options are applied to every wallet the loader creates or opens.
func NewLoader(params *netparams.Params, dbDirPath string,
	noFreelistSync bool, timeout time.Duration, opts ...Option) *Loader {

	return &Loader{
		params:         params,
		dbDirPath:      dbDirPath,
		noFreelistSync: noFreelistSync,
		timeout:        timeout,
		opts:           opts,
	}
}

// onLoaded executes each added callback and prevents loader from loading
// any additional wallets. Requires mutex to be locked.
func (l *Loader) onLoaded(w *Wallet) {
	for _, fn := range l.callbacks {
		fn(w)
	}

	l.wallet = w
	l.callbacks = nil
}

// RunAfterLoad adds a function to be executed when the loader creates or
// opens a wallet. Functions are executed in a single goroutine in the order
// they are added.
func (l *Loader) RunAfterLoad(fn func(*Wallet)) {
	l.mu.Lock()
	if l.wallet != nil {
		w := l.wallet
		l.mu.Unlock()
		fn(w)
	} else {
		l.callbacks = append(l.callbacks, fn)
		l.mu.Unlock()
	}
}

// CreateNewWallet creates an empty wallet database and opens it. Accounts
// are added to the returned wallet afterwards.
func (l *Loader) CreateNewWallet() (*Wallet, error) {
	defer l.mu.Unlock()
	l.mu.Lock()

	if l.wallet != nil {
		return nil, ErrLoaded
	}

	exists, err := l.WalletExists()
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrExists
	}

	if err := os.MkdirAll(l.dbDirPath, 0700); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(l.dbDirPath, WalletDBName)
	db, err := walletdb.Create(
		"bdb", dbPath, l.noFreelistSync, l.timeout, false,
	)
	if err != nil {
		return nil, err
	}

	w := New(l.params, l.opts...)
	var b bytes.Buffer
	if err := w.Serialize(&b); err != nil {
		_ = db.Close()
		return nil, err
	}
	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		bucket, err := tx.CreateTopLevelBucket(walletBucketKey)
		if err != nil {
			return err
		}
		return bucket.Put(snapshotKey, b.Bytes())
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	w.db = db

	log.Infof("Created wallet at %s", dbPath)

	l.db = db
	l.onLoaded(w)
	return w, nil
}

// OpenExistingWallet opens the wallet from the loader's wallet database
// path.
func (l *Loader) OpenExistingWallet() (*Wallet, error) {
	defer l.mu.Unlock()
	l.mu.Lock()

	if l.wallet != nil {
		return nil, ErrLoaded
	}

	dbPath := filepath.Join(l.dbDirPath, WalletDBName)
	db, err := walletdb.Open(
		"bdb", dbPath, l.noFreelistSync, l.timeout, false,
	)
	if err != nil {
		log.Errorf("Failed to open database: %v", err)
		return nil, err
	}

	var snapshot []byte
	err = walletdb.View(db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(walletBucketKey)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found",
				walletBucketKey)
		}
		snapshot = append([]byte(nil), bucket.Get(snapshotKey)...)
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	w, err := Deserialize(l.params, bytes.NewReader(snapshot), l.opts...)
	if err != nil {
		// The database must be closed so that a later open can take
		// the file lock.
		if e := db.Close(); e != nil {
			log.Warnf("Error closing database: %v", e)
		}
		return nil, err
	}
	w.db = db

	log.Infof("Opened wallet at %s", dbPath)

	l.db = db
	l.onLoaded(w)
	return w, nil
}

// WalletExists returns whether a file exists at the loader's database path.
// This may return an error for unexpected I/O failures.
func (l *Loader) WalletExists() (bool, error) {
	return fileExists(filepath.Join(l.dbDirPath, WalletDBName))
}

// LoadedWallet returns the loaded wallet, if any, and a bool for whether
// the wallet has been loaded or not.
func (l *Loader) LoadedWallet() (*Wallet, bool) {
	l.mu.Lock()
	w := l.wallet
	l.mu.Unlock()
	return w, w != nil
}

// UnloadWallet saves the loaded wallet and closes the wallet database. This
// returns ErrNotLoaded if the wallet has not been loaded with
// CreateNewWallet or OpenExistingWallet. The Loader may be reused if this
// function returns without error.
func (l *Loader) UnloadWallet() error {
	defer l.mu.Unlock()
	l.mu.Lock()

	if l.wallet == nil {
		return ErrNotLoaded
	}

	if err := l.wallet.Save(); err != nil {
		return err
	}
	if err := l.db.Close(); err != nil {
		return err
	}

	l.wallet = nil
	l.db = nil
	return nil
}

func fileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
