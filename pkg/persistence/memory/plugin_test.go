package memory

import (
	"testing"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence/persistencetest"
)

func TestMemoryPlugin(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.PluginPersistence {
		p, err := NewPlugin(persistence.PluginConfig{})
		if err != nil {
			t.Fatalf("NewPlugin: %v", err)
		}
		return p
	})
}

func TestMemoryPluginRegistered(t *testing.T) {
	p, err := persistence.NewPersistence(persistence.ProviderConfig{Type: "memory"}, persistence.PluginConfig{})
	if err != nil {
		t.Fatalf("NewPersistence: %v", err)
	}
	if _, ok := p.(*Plugin); !ok {
		t.Fatalf("expected *memory.Plugin, got %T", p)
	}
}
