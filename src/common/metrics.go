package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	redemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "olympia_redemptions_total",
		Help: "Redemption calls by outcome",
	}, []string{"outcome"})
	offlineRedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "olympia_offline_redemptions_total",
		Help: "Redemptions replayed from a device queue",
	})
	evidenceFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "olympia_evidence_upload_failures_total",
		Help: "Evidence uploads that failed and were skipped",
	})
	auditFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "olympia_audit_failures_total",
		Help: "Audit entries that could not be written",
	})
	purchasesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "olympia_purchases_completed_total",
		Help: "Purchases moved to completed",
	})
	inventoryIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "olympia_inventory_issues_total",
		Help: "Reconciliation issues recorded by kind",
	}, []string{"kind"})
)
