package mqtt

import (
	"os"
	"testing"

	"github.com/womat/debug"
)

func TestMain(m *testing.M) {
	debug.SetDebug(os.Stderr, debug.Standard)
	os.Exit(m.Run())
}

func TestConnectWithoutBroker(t *testing.T) {
	m := New()
	if err := m.Connect("", "dpaux"); err != nil {
		t.Errorf("Connect() error = %v", err)
	}
	if m.Connected() {
		t.Error("Connected() = true without broker")
	}
	if err := m.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
}

func TestPublishJSON(t *testing.T) {
	m := New()
	m.PublishJSON("dpaux/frames", map[string]int{"primary": 7})

	msg := <-m.C
	if msg.Topic != "dpaux/frames" || string(msg.Payload) != `{"primary":7}` || msg.Retained || msg.Qos != 0 {
		t.Errorf("message = %+v (%s)", msg, msg.Payload)
	}
}

func TestPublishJSONDropsOnFullQueue(t *testing.T) {
	m := New()
	for i := 0; i < queueSize+5; i++ {
		m.PublishJSON("t", i)
	}
	if len(m.C) != queueSize {
		t.Errorf("%d messages queued, want %d", len(m.C), queueSize)
	}
}

func TestServiceWithoutBroker(t *testing.T) {
	m := New()
	done := make(chan struct{})
	go func() {
		m.Service()
		close(done)
	}()

	m.PublishJSON("t", 1)
	close(m.C)
	<-done
}
