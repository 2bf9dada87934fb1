package metrics

// Helper methods keep call sites to one line and keep paired
// gauge/counter updates consistent.

// RecordConnectionOpen marks a newly accepted connection.
func (m *Metrics) RecordConnectionOpen() {
	m.ConnectionsAccepted.Inc()
	m.ConnectionsActive.Inc()
}

// RecordConnectionClose marks a closed connection.
func (m *Metrics) RecordConnectionClose() {
	m.ConnectionsActive.Dec()
}

// RecordAuthFailure marks a rejected handshake.
func (m *Metrics) RecordAuthFailure() {
	m.AuthFailures.Inc()
}

// RecordMessageReceived counts an inbound message by kind.
func (m *Metrics) RecordMessageReceived(kind string) {
	m.MessagesReceived.WithLabelValues(kind).Inc()
}

// RecordMessageSent counts an outbound message by kind.
func (m *Metrics) RecordMessageSent(kind string) {
	m.MessagesSent.WithLabelValues(kind).Inc()
}

// RecordProtocolFault counts a dropped malformed/unknown frame.
func (m *Metrics) RecordProtocolFault() {
	m.ProtocolFaults.Inc()
}

// RecordCommandStart marks a spawned command.
func (m *Metrics) RecordCommandStart() {
	m.CommandsStarted.Inc()
	m.CommandsActive.Inc()
}

// RecordCommandEnd marks a finished command with its duration in seconds.
func (m *Metrics) RecordCommandEnd(seconds float64) {
	m.CommandsActive.Dec()
	m.CommandDuration.Observe(seconds)
}

// RecordFileRead counts a read request by result.
func (m *Metrics) RecordFileRead(ok bool) {
	m.FileReads.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordFileWrite counts a write request by result.
func (m *Metrics) RecordFileWrite(ok bool) {
	m.FileWrites.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordRequestPending marks a request entering the correlator.
func (m *Metrics) RecordRequestPending() {
	m.RequestsPending.Inc()
}

// RecordRequestResolved marks a request leaving the correlator.
func (m *Metrics) RecordRequestResolved() {
	m.RequestsPending.Dec()
}

// RecordRequestTimeout marks a request resolved by its deadline.
func (m *Metrics) RecordRequestTimeout() {
	m.RequestTimeouts.Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultError
}
