package taskmanager

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-task-agent/internal/domain"
)

func TestRegistry_Get_KnownType(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ReplicationOps{})

	b, err := reg.Get(domain.TypeReplication)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeReplication, b.TransformationType())
}

func TestRegistry_Get_UnknownType(t *testing.T) {
	_, err := NewRegistry().Get("MCReconstruction")

	var notEnabled *domain.TypeNotEnabledError
	require.ErrorAs(t, err, &notEnabled)
	assert.Equal(t, "MCReconstruction", notEnabled.TransformationType)
}

func TestDefaultRegistry_ReportsUnknownTypes(t *testing.T) {
	reg, unknown := DefaultRegistry([]string{domain.TypeRemoval, "MCSimulation", domain.TypeReplication})

	assert.Equal(t, []string{"MCSimulation"}, unknown)
	assert.Equal(t, []string{domain.TypeRemoval, domain.TypeReplication}, reg.Types())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	reg.Register(RemovalOps{})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); reg.Register(ReplicationOps{}) }()
		go func() { defer wg.Done(); _, _ = reg.Get(domain.TypeRemoval) }()
	}
	wg.Wait()
}
