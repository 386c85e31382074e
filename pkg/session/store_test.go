package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreSaveAndLoadRoundTrips(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	sess := New("sess-1", "read the file", 3)
	sess.Transition(StateReasoning)
	sess.RecordResult(TaskResult{TaskID: "t1", Success: true})

	require.NoError(t, store.Save(sess))

	loaded, err := store.Load("sess-1")
	require.NoError(t, err)
	require.Equal(t, sess.ID, loaded.ID)
	require.Equal(t, sess.State, loaded.State)
	require.Equal(t, sess.Input, loaded.Input)
	require.Len(t, loaded.Log, 1)
	require.True(t, loaded.Results["t1"].Success)
}

func TestFileStoreLoadSaveIsIdempotentWithoutTransitions(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	sess := New("sess-2", "hello", 3)
	require.NoError(t, store.Save(sess))

	loaded, err := store.Load("sess-2")
	require.NoError(t, err)
	require.NoError(t, store.Save(loaded))

	reloaded, err := store.Load("sess-2")
	require.NoError(t, err)
	require.Equal(t, loaded, reloaded)
}

func TestFileStoreDeleteRemovesFile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	sess := New("sess-3", "hi", 3)
	require.NoError(t, store.Save(sess))
	require.NoError(t, store.Delete("sess-3"))

	_, err = store.Load("sess-3")
	require.Error(t, err)
}

func TestSessionIsTerminal(t *testing.T) {
	sess := New("sess-4", "hi", 3)
	require.False(t, sess.IsTerminal())
	sess.Transition(StateCompleted)
	require.True(t, sess.IsTerminal())
}
