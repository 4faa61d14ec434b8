package storage_test

import (
	"os"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/storage"
)

func TestBadgerStore(t *testing.T) {
	defer os.RemoveAll("testdata/badger")

	st, err := storage.MakeBadgerStore("testdata/badger", testBlockSize, false,
		log.StandardLogger())
	if err != nil {
		t.Fatal(err)
	}

	testStore(t, st)
}
