package engine

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/buffer"
	"github.com/leftmike/kura/storage"
	"github.com/leftmike/kura/tx"
	"github.com/leftmike/kura/tx/concurrency"
	"github.com/leftmike/kura/tx/recovery"
	"github.com/leftmike/kura/wal"
)

const (
	DefaultBlockSize = 400
	DefaultBuffers   = 8
	DefaultWalFile   = "kura.wal"
)

type Config struct {
	DataDir     string
	Store       string // disk, bbolt, badger, pebble, or btree
	BlockSize   int
	Buffers     int
	WalFile     string
	SyncWrites  bool
	LockTimeout time.Duration
	PinTimeout  time.Duration
}

// Engine wires storage, the write ahead log, the buffer pool, and the
// lock table together and hands out transactions. Startup recovery runs
// before the first transaction can be started.
type Engine struct {
	st storage.Store
	lm *wal.Manager
	bm *buffer.Manager
	lt *concurrency.LockTable

	mutex     sync.Mutex
	cond      *sync.Cond
	txnum     int32
	active    int
	quiescing bool
	closed    bool
}

// Start opens the store, replays recovery, and returns a ready engine.
func Start(cfg Config) (*Engine, error) {
	if cfg.Store == "" {
		cfg.Store = "disk"
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.Buffers <= 0 {
		cfg.Buffers = DefaultBuffers
	}
	if cfg.WalFile == "" {
		cfg.WalFile = DefaultWalFile
	}

	st, err := storage.Open(cfg.Store, cfg.DataDir, cfg.BlockSize, cfg.SyncWrites,
		log.StandardLogger())
	if err != nil {
		return nil, err
	}
	lm, err := wal.NewManager(st, cfg.WalFile)
	if err != nil {
		st.Close()
		return nil, err
	}

	e := &Engine{
		st: st,
		lm: lm,
		bm: buffer.NewManager(st, lm, cfg.Buffers, cfg.PinTimeout),
		lt: concurrency.NewLockTable(cfg.LockTimeout),
	}
	e.cond = sync.NewCond(&e.mutex)

	boot, err := e.NewTransaction()
	if err != nil {
		st.Close()
		return nil, err
	}
	if !st.IsNew() {
		log.WithFields(log.Fields{"store": cfg.Store,
			"datadir": cfg.DataDir}).Info("recovering")
	}
	err = boot.Recover()
	if err != nil {
		st.Close()
		return nil, err
	}

	log.WithFields(log.Fields{"store": cfg.Store, "datadir": cfg.DataDir,
		"blocksize": cfg.BlockSize, "buffers": cfg.Buffers}).Info("engine started")
	return e, nil
}

func (e *Engine) IsNew() bool {
	return e.st.IsNew()
}

// Available returns the number of unpinned buffers in the pool.
func (e *Engine) Available() int {
	return e.bm.Available()
}

// Log exposes the write ahead log for inspection tools.
func (e *Engine) Log() *wal.Manager {
	return e.lm
}

func (e *Engine) BlockSize() int {
	return e.st.BlockSize()
}

// NewTransaction starts a transaction with the next transaction number.
// It waits while a checkpoint is quiescing the engine.
func (e *Engine) NewTransaction() (*tx.Transaction, error) {
	e.mutex.Lock()
	for e.quiescing {
		e.cond.Wait()
	}
	if e.closed {
		e.mutex.Unlock()
		return nil, fmt.Errorf("engine: closed")
	}
	e.txnum += 1
	e.active += 1
	e.mutex.Unlock()

	t, err := tx.New(e.st, e.lm, e.bm, e.lt, e.txnum, e.txDone)
	if err != nil {
		e.txDone()
		return nil, err
	}
	return t, nil
}

func (e *Engine) txDone() {
	e.mutex.Lock()
	e.active -= 1
	e.cond.Broadcast()
	e.mutex.Unlock()
}

// Checkpoint quiesces the engine: it waits for the active transactions
// to finish while holding new ones off, flushes every dirty buffer, and
// writes a checkpoint record so recovery never needs to scan past it.
func (e *Engine) Checkpoint() error {
	e.mutex.Lock()
	for e.quiescing {
		e.cond.Wait()
	}
	if e.closed {
		e.mutex.Unlock()
		return fmt.Errorf("engine: closed")
	}
	e.quiescing = true
	for e.active > 0 {
		e.cond.Wait()
	}
	e.mutex.Unlock()

	err := e.checkpoint()

	e.mutex.Lock()
	e.quiescing = false
	e.cond.Broadcast()
	e.mutex.Unlock()
	return err
}

func (e *Engine) checkpoint() error {
	err := e.bm.FlushDirty()
	if err != nil {
		return err
	}
	lsn, err := recovery.AppendCheckpoint(e.lm)
	if err != nil {
		return err
	}
	err = e.lm.Flush(lsn)
	if err != nil {
		return err
	}
	log.Debug("checkpoint written")
	return nil
}

// Close checkpoints the engine and closes the store. Transactions still
// active delay the close.
func (e *Engine) Close() error {
	err := e.Checkpoint()
	if err != nil {
		return err
	}

	e.mutex.Lock()
	e.closed = true
	e.mutex.Unlock()

	log.Info("engine stopped")
	return e.st.Close()
}
