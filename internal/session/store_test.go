package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carson-networks/fints-sync/internal/banking"
	"github.com/carson-networks/fints-sync/internal/config"
)

var (
	checking = config.AccountProfile{Name: "checking"}
	deflt    = config.AccountProfile{Name: config.DefaultProfileName}
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	token := banking.ResumeToken("opaque dialog state")

	err := store.Save(checking, token)
	assert.NoError(t, err)
	assert.Equal(t, token, store.Load(checking))
}

func TestStore_LoadMissingReturnsNil(t *testing.T) {
	store := NewStore(t.TempDir())
	assert.Nil(t, store.Load(checking))
}

func TestStore_LoadEmptyFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, ".fints_session.checking"), nil, 0o600)
	assert.NoError(t, err)

	store := NewStore(dir)
	assert.Nil(t, store.Load(checking))
}

func TestStore_FileNamesPerAccount(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	assert.NoError(t, store.Save(deflt, banking.ResumeToken("d")))
	assert.NoError(t, store.Save(checking, banking.ResumeToken("c")))

	_, err := os.Stat(filepath.Join(dir, ".fints_session"))
	assert.NoError(t, err, "default profile uses the unsuffixed file")
	_, err = os.Stat(filepath.Join(dir, ".fints_session.checking"))
	assert.NoError(t, err)

	assert.Equal(t, banking.ResumeToken("d"), store.Load(deflt))
	assert.Equal(t, banking.ResumeToken("c"), store.Load(checking))
}

func TestStore_SaveOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())

	assert.NoError(t, store.Save(checking, banking.ResumeToken("first")))
	assert.NoError(t, store.Save(checking, banking.ResumeToken("second")))
	assert.Equal(t, banking.ResumeToken("second"), store.Load(checking))
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	assert.NoError(t, store.Save(checking, banking.ResumeToken("state")))

	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_Clear(t *testing.T) {
	store := NewStore(t.TempDir())

	assert.NoError(t, store.Save(checking, banking.ResumeToken("state")))
	assert.NoError(t, store.Clear(checking))
	assert.Nil(t, store.Load(checking))
}

func TestStore_ClearMissingIsNotAnError(t *testing.T) {
	store := NewStore(t.TempDir())
	assert.NoError(t, store.Clear(checking))
}
