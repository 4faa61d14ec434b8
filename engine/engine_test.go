package engine_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/leftmike/kura/engine"
	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/testutil"
)

func TestMain(m *testing.M) {
	testutil.SetupLogger("engine_test.log")
	m.Run()
}

func TestEngine(t *testing.T) {
	e, err := engine.Start(engine.Config{Store: "btree"})
	if err != nil {
		t.Fatal(err)
	}

	if !e.IsNew() {
		t.Error("IsNew() got false want true")
	}
	if e.BlockSize() != engine.DefaultBlockSize {
		t.Errorf("BlockSize() got %d want %d", e.BlockSize(), engine.DefaultBlockSize)
	}

	tx1, err := e.NewTransaction()
	if err != nil {
		t.Fatal(err)
	}
	blk, err := tx1.Append("data")
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.Pin(blk)
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.SetInt(blk, 0, 42, true)
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.Commit()
	if err != nil {
		t.Fatal(err)
	}

	err = e.Checkpoint()
	if err != nil {
		t.Fatalf("Checkpoint() failed with %s", err)
	}

	// The engine keeps working after a checkpoint.
	tx2, err := e.NewTransaction()
	if err != nil {
		t.Fatal(err)
	}
	err = tx2.Pin(blk)
	if err != nil {
		t.Fatal(err)
	}
	val, err := tx2.GetInt(blk, 0)
	if err != nil {
		t.Fatal(err)
	}
	if val != 42 {
		t.Errorf("GetInt got %d want 42", val)
	}
	err = tx2.Commit()
	if err != nil {
		t.Fatal(err)
	}

	err = e.Close()
	if err != nil {
		t.Fatalf("Close() failed with %s", err)
	}
	_, err = e.NewTransaction()
	if err == nil {
		t.Error("NewTransaction() after Close() did not fail")
	}
}

func TestPersistence(t *testing.T) {
	dataDir := filepath.Join("testdata", "engine")
	err := testutil.CleanDir(dataDir, []string{".gitignore"})
	if err != nil {
		t.Fatal(err)
	}
	cfg := engine.Config{DataDir: dataDir, Store: "disk", BlockSize: 128, Buffers: 4}

	e, err := engine.Start(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !e.IsNew() {
		t.Error("IsNew() got false want true")
	}

	tx1, err := e.NewTransaction()
	if err != nil {
		t.Fatal(err)
	}
	blk, err := tx1.Append("data")
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.Pin(blk)
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.SetString(blk, 0, "durable", true)
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.Commit()
	if err != nil {
		t.Fatal(err)
	}
	err = e.Close()
	if err != nil {
		t.Fatal(err)
	}

	// Restart: recovery runs, the committed value survives.
	e, err = engine.Start(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if e.IsNew() {
		t.Error("IsNew() got true want false")
	}
	tx2, err := e.NewTransaction()
	if err != nil {
		t.Fatal(err)
	}
	err = tx2.Pin(file.BlockId{Filename: "data", Blknum: 0})
	if err != nil {
		t.Fatal(err)
	}
	s, err := tx2.GetString(file.BlockId{Filename: "data", Blknum: 0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s != "durable" {
		t.Errorf("GetString got %q want %q", s, "durable")
	}
	err = tx2.Commit()
	if err != nil {
		t.Fatal(err)
	}
	err = e.Close()
	if err != nil {
		t.Fatal(err)
	}
}

func TestCheckpointQuiesce(t *testing.T) {
	e, err := engine.Start(engine.Config{Store: "btree"})
	if err != nil {
		t.Fatal(err)
	}

	tx1, err := e.NewTransaction()
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- e.Checkpoint()
	}()

	// The checkpoint must wait for the active transaction.
	time.Sleep(50 * time.Millisecond)
	select {
	case err = <-done:
		t.Fatalf("Checkpoint() did not wait: %v", err)
	default:
	}

	err = tx1.Commit()
	if err != nil {
		t.Fatal(err)
	}

	select {
	case err = <-done:
		if err != nil {
			t.Fatalf("Checkpoint() failed with %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Checkpoint() did not complete after Commit")
	}

	err = e.Close()
	if err != nil {
		t.Fatal(err)
	}
}
