package verify

import (
	"context"
	"fmt"

	"github.com/paydue/reminder-engine/internal/accounting"
	"github.com/paydue/reminder-engine/internal/domain"
	"go.uber.org/zap"
)

// Result is the pre-dispatch verification outcome. When ShouldProceed is
// false the reminder must not reach a provider.
type Result struct {
	ShouldProceed bool
	Status        domain.InvoiceStatus
	Balance       float64
	Reason        string
}

// InvoiceCache is the narrow write-back surface into the local invoice cache.
type InvoiceCache interface {
	RefreshStatus(ctx context.Context, id string, status domain.InvoiceStatus, balance float64) error
}

// Verifier re-checks authoritative invoice state immediately before a
// dispatch so the engine never contacts a customer who already paid.
type Verifier struct {
	fetcher  accounting.StatusFetcher
	invoices InvoiceCache
	logger   *zap.Logger
}

func New(fetcher accounting.StatusFetcher, invoices InvoiceCache, logger *zap.Logger) (*Verifier, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("status fetcher is required")
	}
	if invoices == nil {
		return nil, fmt.Errorf("invoice cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Verifier{
		fetcher:  fetcher,
		invoices: invoices,
		logger:   logger,
	}, nil
}

// ShouldProceed fails closed: any fetch error means no dispatch.
func (v *Verifier) ShouldProceed(ctx context.Context, invoiceID string) Result {
	status, err := v.fetcher.GetInvoiceStatus(ctx, invoiceID)
	if err != nil {
		v.logger.Warn("invoice status verification failed, not dispatching",
			zap.String("invoiceId", invoiceID),
			zap.Error(err),
		)
		return Result{
			ShouldProceed: false,
			Status:        domain.InvoiceUnknown,
			Reason:        fmt.Sprintf("verification failed: %v", err),
		}
	}

	// Refresh the local cache regardless of the decision; this is the one
	// write the engine is allowed on invoice rows.
	if err := v.invoices.RefreshStatus(ctx, invoiceID, status.Status, status.Balance); err != nil {
		v.logger.Error("failed to write back verified invoice status",
			zap.String("invoiceId", invoiceID),
			zap.Error(err),
		)
	}

	if status.Status == domain.InvoicePaid {
		return Result{
			ShouldProceed: false,
			Status:        status.Status,
			Balance:       status.Balance,
			Reason:        "invoice already paid",
		}
	}
	if !status.Status.IsActionable() {
		return Result{
			ShouldProceed: false,
			Status:        status.Status,
			Balance:       status.Balance,
			Reason:        fmt.Sprintf("invoice status %s is not actionable", status.Status),
		}
	}
	if status.Balance <= 0 {
		return Result{
			ShouldProceed: false,
			Status:        status.Status,
			Balance:       status.Balance,
			Reason:        "no outstanding balance",
		}
	}

	return Result{
		ShouldProceed: true,
		Status:        status.Status,
		Balance:       status.Balance,
	}
}
