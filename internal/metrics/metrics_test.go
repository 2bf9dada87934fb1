package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	// Create a new registry for isolated testing
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}

	if m.ConnectionsActive == nil {
		t.Error("ConnectionsActive metric is nil")
	}
	if m.CommandDuration == nil {
		t.Error("CommandDuration metric is nil")
	}
	if m.MessagesSent == nil {
		t.Error("MessagesSent metric is nil")
	}
}

func TestRecordConnectionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordConnectionOpen()
	m.RecordConnectionOpen()
	m.RecordConnectionClose()

	active := testutil.ToFloat64(m.ConnectionsActive)
	if active != 1 {
		t.Errorf("ConnectionsActive = %v, want 1", active)
	}

	accepted := testutil.ToFloat64(m.ConnectionsAccepted)
	if accepted != 2 {
		t.Errorf("ConnectionsAccepted = %v, want 2", accepted)
	}
}

func TestRecordCommands(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordCommandStart()
	m.RecordCommandStart()
	m.RecordCommandEnd(0.25)

	active := testutil.ToFloat64(m.CommandsActive)
	if active != 1 {
		t.Errorf("CommandsActive = %v, want 1", active)
	}

	started := testutil.ToFloat64(m.CommandsStarted)
	if started != 2 {
		t.Errorf("CommandsStarted = %v, want 2", started)
	}
}

func TestRecordMessagesByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordMessageReceived("command")
	m.RecordMessageReceived("command")
	m.RecordMessageSent("output")

	received := testutil.ToFloat64(m.MessagesReceived.WithLabelValues("command"))
	if received != 2 {
		t.Errorf("MessagesReceived[command] = %v, want 2", received)
	}

	sent := testutil.ToFloat64(m.MessagesSent.WithLabelValues("output"))
	if sent != 1 {
		t.Errorf("MessagesSent[output] = %v, want 1", sent)
	}
}

func TestRecordFileOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordFileRead(true)
	m.RecordFileRead(false)
	m.RecordFileWrite(true)

	okReads := testutil.ToFloat64(m.FileReads.WithLabelValues(ResultOK))
	if okReads != 1 {
		t.Errorf("FileReads[ok] = %v, want 1", okReads)
	}

	failedReads := testutil.ToFloat64(m.FileReads.WithLabelValues(ResultError))
	if failedReads != 1 {
		t.Errorf("FileReads[error] = %v, want 1", failedReads)
	}
}

func TestRecordRequestLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordRequestPending()
	m.RecordRequestPending()
	m.RecordRequestResolved()
	m.RecordRequestTimeout()

	pending := testutil.ToFloat64(m.RequestsPending)
	if pending != 1 {
		t.Errorf("RequestsPending = %v, want 1", pending)
	}

	timeouts := testutil.ToFloat64(m.RequestTimeouts)
	if timeouts != 1 {
		t.Errorf("RequestTimeouts = %v, want 1", timeouts)
	}
}

func TestDefault_Singleton(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() must return the same instance")
	}
}
