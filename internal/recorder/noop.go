package recorder

// NoopRecorder is used when the journal is disabled.
type NoopRecorder struct{}

// NewNoopRecorder creates a recorder that discards everything.
func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordCycle(_ *CycleRecord) error          { return nil }
func (n *NoopRecorder) RecordTrade(_ *TradeRecord) error          { return nil }
func (n *NoopRecorder) RecordFundEvent(_ *FundEvent) error        { return nil }
func (n *NoopRecorder) RecentTrades(_ int) ([]TradeRecord, error) { return nil, nil }
func (n *NoopRecorder) Close() error                              { return nil }
