package state_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gxo-labs/txinstall/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	store := state.NewMemoryStore()

	exists, err := store.Exists("/a.InstallState")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Write("/a.InstallState", []byte(`{"k":1}`)))
	exists, err = store.Exists("/a.InstallState")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.Read("/a.InstallState")
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, string(data))

	require.NoError(t, store.Remove("/a.InstallState"))
	require.NoError(t, store.Remove("/a.InstallState"), "removing a missing document succeeds")
	assert.Empty(t, store.Paths())
}

func TestMemoryStore_CopiesBuffers(t *testing.T) {
	store := state.NewMemoryStore()
	buf := []byte("original")
	require.NoError(t, store.Write("p", buf))
	buf[0] = 'X'

	data, err := store.Read("p")
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	data[0] = 'Y'
	again, err := store.Read("p")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

func TestMemoryStore_ReadMissing(t *testing.T) {
	_, err := state.NewMemoryStore().Read("missing")
	assert.Error(t, err)
}

func TestMemoryStore_EmptyPath(t *testing.T) {
	assert.Error(t, state.NewMemoryStore().Write("", []byte("x")))
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := state.NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("c%d.InstallState", i)
			assert.NoError(t, store.Write(path, []byte("x")))
			_, err := store.Read(path)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, store.Paths(), 20)
}

var benchmarkResult []byte

func BenchmarkMemoryStore_Read(b *testing.B) {
	store := state.NewMemoryStore()
	doc := make([]byte, 16*1024)
	if err := store.Write("bench", doc); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		benchmarkResult, _ = store.Read("bench")
	}
}
