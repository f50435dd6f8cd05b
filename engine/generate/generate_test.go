package generate

import "testing"

func TestManager_GeneratorSelectsConfiguredDefaultProvider(t *testing.T) {
	m := NewManager(Config{DefaultProvider: ProviderCloudChat, CloudModel: "claude-x", LocalModel: "llama-x"})

	if _, ok := m.Generator("").(*CloudGenerator); !ok {
		t.Errorf("expected default provider to resolve to CloudGenerator")
	}
	if _, ok := m.Generator(ProviderLocalChat).(*LocalGenerator); !ok {
		t.Errorf("per-call override to local-chat should resolve to LocalGenerator")
	}
}

func TestManager_UpdateInvalidatesCachedClients(t *testing.T) {
	m := NewManager(Config{DefaultProvider: ProviderLocalChat, LocalModel: "v1"})
	before := m.Generator(ProviderLocalChat).(*LocalGenerator)

	m.Update(Config{DefaultProvider: ProviderLocalChat, LocalModel: "v2"})
	after := m.Generator(ProviderLocalChat).(*LocalGenerator)

	if before == after {
		t.Errorf("Update should rebuild the cached client, not mutate it in place")
	}
	if after.model != "v2" {
		t.Errorf("rebuilt client model = %q, want v2", after.model)
	}
}

func TestManager_ConfigReturnsCurrentSnapshot(t *testing.T) {
	m := NewManager(Config{DefaultProvider: ProviderCloudChat})
	m.Update(Config{DefaultProvider: ProviderLocalChat})

	if m.Config().DefaultProvider != ProviderLocalChat {
		t.Errorf("Config() did not reflect the latest Update")
	}
}
