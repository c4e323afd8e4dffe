package heap_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/exfatvol/exfatvol/errors"
	"github.com/exfatvol/exfatvol/fat"
	"github.com/exfatvol/exfatvol/heap"
)

func newTestHeap(t *testing.T) *heap.ClusterHeap {
	t.Helper()
	h, err := heap.New(512, 8, 1024)
	require.NoError(t, err)
	return h
}

func TestNew__RootClusterHoldsSeedEntries(t *testing.T) {
	h := newTestHeap(t)
	root := h.RootCluster()

	buf := make([]byte, 512)
	require.NoError(t, h.ReadSector(uint64(root)*8, buf))

	// The root directory's seed entries start with the Volume Label entry.
	assert.Equal(t, byte(0x83), buf[0])
}

func TestAddDirectory__CreatesChild(t *testing.T) {
	h := newTestHeap(t)
	root := h.RootCluster()

	child, err := h.AddDirectory(root, "documents")
	require.NoError(t, err)
	assert.NotEqual(t, root, child)
}

func TestAddDirectory__RejectsDuplicateName(t *testing.T) {
	h := newTestHeap(t)
	root := h.RootCluster()

	_, err := h.AddDirectory(root, "docs")
	require.NoError(t, err)

	_, err = h.AddDirectory(root, "docs")
	assert.ErrorIs(t, err, xerrors.ErrDuplicateName)
}

func TestAddDirectory__RejectsDuplicateNameCaseInsensitive(t *testing.T) {
	h := newTestHeap(t)
	root := h.RootCluster()

	_, err := h.AddDirectory(root, "Docs")
	require.NoError(t, err)

	_, err = h.AddDirectory(root, "DOCS")
	assert.ErrorIs(t, err, xerrors.ErrDuplicateName)
}

func TestAddDirectory__RejectsEmptyName(t *testing.T) {
	h := newTestHeap(t)
	_, err := h.AddDirectory(h.RootCluster(), "")
	assert.ErrorIs(t, err, xerrors.ErrEmptyName)
}

func TestMapFile__StreamsHostContent(t *testing.T) {
	h := newTestHeap(t)
	root := h.RootCluster()

	content := []byte("hello, exfat\n")
	path := filepath.Join(t.TempDir(), "greeting.txt")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	child, err := h.MapFile(root, path, "greeting.txt")
	require.NoError(t, err)

	buf := make([]byte, 512)
	require.NoError(t, h.ReadSector(uint64(child)*8, buf))
	assert.Equal(t, content, buf[:len(content)])
	for _, x := range buf[len(content):] {
		assert.Equal(t, byte(0), x)
	}
}

func TestAddDirectory__ManyChildrenSpanClusters(t *testing.T) {
	hp, err := heap.New(512, 1, 2048) // 512-byte clusters: 16 entries each
	require.NoError(t, err)
	root := hp.RootCluster()

	// Each child needs 3 entries (file+stream+1 name chunk); the root's
	// single 512-byte cluster (16 slots, 3 pre-used) overflows well before
	// 20 more children, forcing at least one extra cluster to link in.
	for i := 0; i < 20; i++ {
		_, err := hp.AddDirectory(root, string(rune('a'+i))+"-dir")
		require.NoError(t, err)
	}
}

func TestAddDirectory__ScenarioS7ParentSpillsOnSeventhChild(t *testing.T) {
	hp, err := heap.New(512, 8, 512) // 4096-byte clusters: 128 entries each
	require.NoError(t, err)
	root := hp.RootCluster()
	assert.Equal(t, fat.HeapIndex(3), root)

	// Each name is 253 UTF-16 units long, so each child's entry set needs
	// 2+17 = 19 slots. The root's single 4096-byte cluster has 125 free
	// slots after its 3 seed entries, room for exactly 6 children
	// (114 used, 11 left) but not a 7th.
	var children []fat.HeapIndex
	for i := 0; i < 7; i++ {
		name := fmt.Sprintf("%03d", i) + strings.Repeat("a", 250)
		require.Len(t, name, 253)
		child, err := hp.AddDirectory(root, name)
		require.NoError(t, err)
		children = append(children, child)
	}

	for i, want := range []fat.HeapIndex{4, 5, 6, 7, 8, 9} {
		assert.Equal(t, want, children[i], "child %d should not have triggered a parent spill", i)
	}

	// The 7th insertion needs root to grow first: the spillover cluster for
	// root's own chain is allocated at index 10, right before the 7th
	// child's own cluster at index 11 - the child's first_cluster skips
	// past the index root's spillover just claimed.
	assert.Equal(t, fat.HeapIndex(11), children[6])

	buf := make([]byte, 512)
	require.NoError(t, hp.ReadSector(uint64(10)*8, buf))
	assert.NotEqual(t, make([]byte, 512), buf, "root's spillover cluster should now hold directory entries")
}

func TestReadSector__UnoccupiedClusterIsZero(t *testing.T) {
	h := newTestHeap(t)

	// Heap cluster far past anything allocated during construction. buf
	// starts zeroed, matching ReadSector's documented contract that it
	// leaves an unoccupied cluster's sectors untouched.
	buf := make([]byte, 512)
	require.NoError(t, h.ReadSector(900*8, buf))
	for _, x := range buf {
		assert.Equal(t, byte(0), x)
	}
}
