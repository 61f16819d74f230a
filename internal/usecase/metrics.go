package usecase

import domrepo "FinSignal/internal/domain/repository"

type nopMetrics struct{}

func (nopMetrics) RecordSignal(string, string, int) {}
func (nopMetrics) RecordNotification(string, bool) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordCycle(int, int) {}

func orNop(m domrepo.Metrics) domrepo.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
