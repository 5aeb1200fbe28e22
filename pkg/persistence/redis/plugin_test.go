package redis

import (
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence/persistencetest"
)

func newTestPlugin(t *testing.T) persistence.PluginPersistence {
	t.Helper()
	mr := miniredis.RunT(t)
	raw, _ := json.Marshal(Config{Addr: mr.Addr()})
	p, err := persistence.NewPersistence(persistence.ProviderConfig{Type: "redis", Config: raw}, persistence.PluginConfig{})
	if err != nil {
		t.Fatalf("NewPersistence: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestRedisPlugin(t *testing.T) {
	persistencetest.Run(t, newTestPlugin)
}

func TestRedisPluginRequiresAddr(t *testing.T) {
	_, err := persistence.NewPersistence(persistence.ProviderConfig{Type: "redis"}, persistence.PluginConfig{})
	if err == nil {
		t.Fatalf("expected error without addr")
	}
}
