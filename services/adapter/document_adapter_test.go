package adapter

import "testing"

func TestSearchAddress(t *testing.T) {
	addr := searchAddress(map[string]string{"host": "es1", "port": "9201"}, nil)
	if addr != "http://es1:9201" {
		t.Errorf("unexpected address: %s", addr)
	}

	addr = searchAddress(map[string]string{"host": "es1"}, map[string]interface{}{"use_ssl": true})
	if addr != "https://es1:9200" {
		t.Errorf("Expected https with default port, got %s", addr)
	}

	addr = searchAddress(map[string]string{}, nil)
	if addr != "http://localhost:9200" {
		t.Errorf("Expected localhost default, got %s", addr)
	}
}
