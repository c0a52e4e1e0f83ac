package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplicaListMembership(t *testing.T) {
	l := NewReplicaList()
	l.Replace([]string{"a:1", "b:1", "a:1", ""})
	assert.Equal(t, []string{"a:1", "b:1"}, l.Snapshot())

	assert.True(t, l.Append("c:1"))
	assert.False(t, l.Append("b:1"))
	assert.Equal(t, 2, l.IndexOf("c:1"))
	assert.Equal(t, []string{"b:1", "c:1"}, l.Others("a:1"))

	primary, ok := l.Primary()
	assert.True(t, ok)
	assert.Equal(t, "a:1", primary)

	assert.True(t, l.Remove("b:1"))
	assert.False(t, l.Remove("b:1"))
	assert.Equal(t, []string{"a:1", "c:1"}, l.Snapshot())
}

func TestRemovePrimaryIfUnchanged(t *testing.T) {
	l := NewReplicaList()
	l.Replace([]string{"a:1", "b:1", "c:1"})

	stale := l.Version()
	l.Remove("c:1")
	assert.False(t, l.RemovePrimaryIf("a:1", stale))

	current := l.Version()
	assert.False(t, l.RemovePrimaryIf("b:1", current))
	assert.True(t, l.RemovePrimaryIf("a:1", current))
	assert.Equal(t, []string{"b:1"}, l.Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	l := NewReplicaList()
	l.Replace([]string{"a:1", "b:1"})
	snap := l.Snapshot()
	snap[0] = "z:1"
	p, _ := l.Primary()
	assert.Equal(t, "a:1", p)
}
