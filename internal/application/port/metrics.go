package port

// Metrics 中继运行指标
type Metrics interface {
	UpstreamFrame(kind string)
	Delivery(topic Topic, delivered bool)
	DuplicateTrade()
	ResolveFallback()
	ActiveSubscriptions(n int)
}

// NopMetrics 不记录任何指标
type NopMetrics struct{}

func (NopMetrics) UpstreamFrame(string) {}
func (NopMetrics) Delivery(Topic, bool) {}
func (NopMetrics) DuplicateTrade() {}
func (NopMetrics) ResolveFallback() {}
func (NopMetrics) ActiveSubscriptions(int) {}
