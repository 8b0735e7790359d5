package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raw-labs/mxcp/internal/endpoint"
)

func TestNewSnapshotCounts(t *testing.T) {
	snap := NewSnapshot([]*endpoint.Endpoint{
		{ID: "add", Kind: endpoint.KindTool, Enabled: true},
		{ID: "customer", Kind: endpoint.KindResource, Enabled: true},
		{ID: "greet", Kind: endpoint.KindPrompt, Enabled: true},
	}, time.Unix(0, 0))
	tools, resources, prompts := snap.Counts()
	assert.Equal(t, 1, tools)
	assert.Equal(t, 1, resources)
	assert.Equal(t, 1, prompts)
	assert.NotEmpty(t, snap.SchemaHash)
}

func TestSnapshotHashDeterministic(t *testing.T) {
	eps := []*endpoint.Endpoint{{ID: "add", Kind: endpoint.KindTool, Enabled: true}}
	a := NewSnapshot(eps, time.Unix(0, 0))
	b := NewSnapshot(eps, time.Unix(100, 0))
	assert.Equal(t, a.SchemaHash, b.SchemaHash)
}

func TestLookupSkipsDisabled(t *testing.T) {
	snap := NewSnapshot([]*endpoint.Endpoint{
		{ID: "add", Kind: endpoint.KindTool, Enabled: false},
	}, time.Now())
	_, ok := snap.Lookup("add")
	assert.False(t, ok)
}

func TestRegistryPublishIsVisibleToNewReaders(t *testing.T) {
	r := New(NewSnapshot(nil, time.Now()))
	first := r.Current()
	assert.Empty(t, first.Endpoints)

	r.Publish(NewSnapshot([]*endpoint.Endpoint{{ID: "add", Kind: endpoint.KindTool, Enabled: true}}, time.Now()))

	second := r.Current()
	_, ok := second.Lookup("add")
	require.True(t, ok)

	// The reader holding `first` still sees the old, empty snapshot.
	assert.Empty(t, first.Endpoints)
}
