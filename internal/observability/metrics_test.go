package observability

import "testing"

func TestNewMetricsPopulatesCollectors(t *testing.T) {
	m := NewMetrics()

	if m.BusPublishedCounter == nil || m.BusDeliveredCounter == nil || m.BusDroppedCounter == nil {
		t.Fatal("expected bus counters to be initialized")
	}
	if m.RegistryInvocationCounter == nil || m.RegistryInvokeDurationVec == nil {
		t.Fatal("expected registry collectors to be initialized")
	}
	if m.MCPCallCounter == nil || m.MCPConnectedGauge == nil {
		t.Fatal("expected mcp collectors to be initialized")
	}
	if m.BrokerCacheHitCounter == nil || m.BrokerCacheMissCounter == nil {
		t.Fatal("expected broker collectors to be initialized")
	}

	m.BusPublishedCounter.WithLabelValues("topic.a").Inc()
	m.BrokerCacheHitCounter.Inc()
}
