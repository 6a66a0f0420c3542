package main

import "testing"

func TestBrokerURL(t *testing.T) {
	t.Setenv("BROKER_URL", "")
	if got := brokerURL(); got != defaultBrokerURL {
		t.Errorf("brokerURL = %q, want %q", got, defaultBrokerURL)
	}

	t.Setenv("BROKER_URL", "http://broker.internal:9090/")
	if got := brokerURL(); got != "http://broker.internal:9090" {
		t.Errorf("brokerURL = %q, want trailing slash trimmed", got)
	}
}
