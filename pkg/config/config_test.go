package config

import "testing"

func TestAllKeysPaidFirst(t *testing.T) {
	k := KeysConfig{
		Paid: []string{"p1", "p2"},
		Free: []string{"f1"},
	}
	got := k.AllKeys()
	want := []string{"p1", "p2", "f1"}
	if len(got) != len(want) {
		t.Fatalf("AllKeys() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AllKeys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"missing model", func(c *Config) { c.Transcribe.Model = "" }, true},
		{"missing chat model", func(c *Config) { c.Transcribe.ChatModel = "" }, true},
		{"zero segment minutes", func(c *Config) { c.Transcribe.SegmentMinutes = 0 }, true},
		{"zero workers", func(c *Config) { c.Transcribe.MaxWorkers = 0 }, true},
		{"zero history entries", func(c *Config) { c.History.MaxEntries = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
