// internal/domain/reservation/manager.go
package reservation

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/stock"
	"github.com/your-org/erp-backend/internal/pkg/errs"
	"github.com/your-org/erp-backend/internal/pkg/txutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Manager owns the lifecycle of reservation records and is the sole
// writer of the SoftReserved/HardReserved aggregates on the stock
// ledger. Every counter change happens in the same transaction as the
// reservation row write, so the counters always equal the sum of
// active reservations.
type Manager struct {
	db     *gorm.DB
	ledger *stock.Ledger
	config *config.Config
	log    *logrus.Logger
}

// NewManager creates a new reservation manager
func NewManager(db *gorm.DB, ledger *stock.Ledger, cfg *config.Config, log *logrus.Logger) *Manager {
	return &Manager{
		db:     db,
		ledger: ledger,
		config: cfg,
		log:    log,
	}
}

// ReserveRequest represents a reservation to be created
type ReserveRequest struct {
	ProductID     uint          `json:"product_id" binding:"required"`
	WarehouseID   uint          `json:"warehouse_id" binding:"required"`
	Quantity      int           `json:"quantity" binding:"required"`
	Type          Type          `json:"type" binding:"required"`
	ReferenceType ReferenceType `json:"reference_type" binding:"required"`
	ReferenceID   uint          `json:"reference_id" binding:"required"`
	ReferenceLine uint          `json:"reference_line,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
	// IdempotencyKey makes retries safe: the referencing document's
	// id plus an operation tag, supplied by the caller.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (req *ReserveRequest) validate() error {
	if req.Quantity <= 0 {
		return errs.Validation("quantity", "must be positive")
	}
	if !req.Type.IsValid() {
		return errs.Validation("type", fmt.Sprintf("unknown reservation type %q", req.Type))
	}
	if !req.ReferenceType.IsValid() {
		return errs.Validation("reference_type", fmt.Sprintf("unknown reference type %q", req.ReferenceType))
	}
	if req.ReferenceID == 0 {
		return errs.Validation("reference_id", "is required")
	}
	if req.ExpiresAt != nil && req.Type != TypeSoft {
		return errs.Validation("expires_at", "only SOFT reservations expire")
	}
	return nil
}

// Reserve creates a reservation in its own transaction, retrying on
// serialization conflicts.
func (m *Manager) Reserve(req *ReserveRequest, actor string) (*StockReservation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var res *StockReservation
	err := txutil.WithRetry(m.db, m.log, m.config.Stock.TxRetryLimit, "reserve", func(tx *gorm.DB) error {
		var err error
		res, err = m.ReserveTx(tx, req, actor)
		return err
	})
	return res, err
}

// ReserveTx creates a reservation inside the caller's transaction.
// For HARD reservations availability is re-checked under the level
// row lock, never trusted from a prior read.
func (m *Manager) ReserveTx(tx *gorm.DB, req *ReserveRequest, actor string) (*StockReservation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		var existing StockReservation
		err := tx.Where("idempotency_key = ?", req.IdempotencyKey).First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("failed idempotency lookup: %w", err)
		}
	}

	softDelta, hardDelta := 0, 0
	if req.Type == TypeSoft {
		softDelta = req.Quantity
	} else {
		hardDelta = req.Quantity
	}
	if _, err := m.ledger.AdjustReservedCountersTx(tx, req.ProductID, req.WarehouseID, softDelta, hardDelta); err != nil {
		return nil, err
	}

	res := &StockReservation{
		ProductID:     req.ProductID,
		WarehouseID:   req.WarehouseID,
		Quantity:      req.Quantity,
		Type:          req.Type,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		ReferenceLine: req.ReferenceLine,
		ExpiresAt:     req.ExpiresAt,
		CreatedBy:     actor,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		res.IdempotencyKey = &key
	}
	if err := tx.Create(res).Error; err != nil {
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	return res, nil
}

// Release frees a reservation. Releasing an already-released row is a
// no-op so the operation can be retried safely.
func (m *Manager) Release(reservationID uint, actor, reason string) error {
	return txutil.WithRetry(m.db, m.log, m.config.Stock.TxRetryLimit, "release", func(tx *gorm.DB) error {
		return m.ReleaseTx(tx, reservationID, actor, reason)
	})
}

// ReleaseTx releases inside the caller's transaction
func (m *Manager) ReleaseTx(tx *gorm.DB, reservationID uint, actor, reason string) error {
	var res StockReservation
	err := forUpdate(tx).Where("id = ?", reservationID).First(&res).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return errs.ErrNotFound
		}
		return fmt.Errorf("failed to load reservation: %w", err)
	}

	if !res.Active() {
		m.log.WithFields(logrus.Fields{
			"reservation_id": reservationID,
			"released_at":    res.ReleasedAt,
			"actor":          actor,
		}).Warn("release of already-released reservation treated as no-op")
		return nil
	}

	return m.releaseRowTx(tx, &res, actor, reason, true)
}

// releaseRowTx stamps the release and, when adjustCounters is set,
// decrements the matching ledger counter in the same transaction.
// Transfer passes false: the quantity stays reserved under the new
// reference, so the counter must not move.
func (m *Manager) releaseRowTx(tx *gorm.DB, res *StockReservation, actor, reason string, adjustCounters bool) error {
	now := time.Now().UTC()
	result := tx.Model(&StockReservation{}).
		Where("id = ? AND released_at IS NULL", res.ID).
		Updates(map[string]interface{}{
			"released_at":    now,
			"released_by":    actor,
			"release_reason": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to release reservation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &errs.AlreadyReleasedError{ReservationID: res.ID}
	}

	if adjustCounters {
		softDelta, hardDelta := 0, 0
		if res.Type == TypeSoft {
			softDelta = -res.Quantity
		} else {
			hardDelta = -res.Quantity
		}
		if _, err := m.ledger.AdjustReservedCountersTx(tx, res.ProductID, res.WarehouseID, softDelta, hardDelta); err != nil {
			return err
		}
	}

	return nil
}

// Transfer atomically moves a reservation to a new reference: the old
// row is released and a new one of the same type and quantity is
// created in a single transaction, so no window exists in which both
// or neither are active. This is the only sanctioned way to hand a
// quantity from SalesOrder scope to a fulfillment document.
func (m *Manager) Transfer(reservationID uint, newType ReferenceType, newID uint, actor string) (*StockReservation, error) {
	var res *StockReservation
	err := txutil.WithRetry(m.db, m.log, m.config.Stock.TxRetryLimit, "transfer", func(tx *gorm.DB) error {
		var err error
		res, err = m.TransferTx(tx, reservationID, newType, newID, actor)
		return err
	})
	return res, err
}

// TransferTx transfers inside the caller's transaction. The counters
// are untouched: the same physical units stay reserved throughout, so
// the hard-reserved aggregate can never double-count a handoff.
func (m *Manager) TransferTx(tx *gorm.DB, reservationID uint, newType ReferenceType, newID uint, actor string) (*StockReservation, error) {
	if !newType.IsValid() {
		return nil, errs.Validation("reference_type", fmt.Sprintf("unknown reference type %q", newType))
	}
	if newID == 0 {
		return nil, errs.Validation("reference_id", "is required")
	}

	transferKey := fmt.Sprintf("xfer:%d:%s:%d", reservationID, newType, newID)

	// Retried transfers find the row the first attempt created.
	var existing StockReservation
	err := tx.Where("idempotency_key = ?", transferKey).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed idempotency lookup: %w", err)
	}

	var old StockReservation
	err = forUpdate(tx).Where("id = ?", reservationID).First(&old).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}

	if !old.Active() {
		m.log.WithFields(logrus.Fields{
			"reservation_id": reservationID,
			"new_reference":  fmt.Sprintf("%s/%d", newType, newID),
		}).Warn("transfer requested for released reservation")
		return nil, &errs.AlreadyReleasedError{ReservationID: reservationID}
	}

	if err := m.releaseRowTx(tx, &old, actor, fmt.Sprintf("transferred to %s %d", newType, newID), false); err != nil {
		return nil, err
	}

	replacement := &StockReservation{
		ProductID:      old.ProductID,
		WarehouseID:    old.WarehouseID,
		Quantity:       old.Quantity,
		Type:           old.Type,
		ReferenceType:  newType,
		ReferenceID:    newID,
		ReferenceLine:  old.ReferenceLine,
		ExpiresAt:      old.ExpiresAt,
		CreatedBy:      actor,
		IdempotencyKey: &transferKey,
	}
	if err := tx.Create(replacement).Error; err != nil {
		return nil, fmt.Errorf("failed to create replacement reservation: %w", err)
	}

	return replacement, nil
}

// ExpireSoftReservations releases SOFT reservations whose ExpiresAt
// has passed. The released_at IS NULL predicate makes concurrent or
// redundant sweeps safe.
func (m *Manager) ExpireSoftReservations(now time.Time) (int, error) {
	var candidates []StockReservation
	err := m.db.Where("type = ? AND released_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ?", TypeSoft, now).
		Find(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	expired := 0
	for i := range candidates {
		res := candidates[i]
		err := m.db.Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&StockReservation{}).
				Where("id = ? AND released_at IS NULL", res.ID).
				Updates(map[string]interface{}{
					"released_at":    now,
					"released_by":    "system",
					"release_reason": "expired",
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				// Another sweep or a release got there first.
				return nil
			}
			if _, err := m.ledger.AdjustReservedCountersTx(tx, res.ProductID, res.WarehouseID, -res.Quantity, 0); err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil {
			m.log.WithError(err).WithField("reservation_id", res.ID).Error("failed to expire soft reservation")
		}
	}

	return expired, nil
}

// ActiveByReference lists the active reservations held by a document
func (m *Manager) ActiveByReference(refType ReferenceType, refID uint) ([]StockReservation, error) {
	var reservations []StockReservation
	err := m.db.Where("reference_type = ? AND reference_id = ? AND released_at IS NULL", refType, refID).
		Order("id").Find(&reservations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, nil
}

// ActiveByReferenceTx is ActiveByReference inside a transaction, with
// the rows locked for update.
func (m *Manager) ActiveByReferenceTx(tx *gorm.DB, refType ReferenceType, refID uint) ([]StockReservation, error) {
	var reservations []StockReservation
	err := forUpdate(tx).
		Where("reference_type = ? AND reference_id = ? AND released_at IS NULL", refType, refID).
		Order("id").Find(&reservations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, nil
}

// ReleaseByReferenceTx releases every active reservation a document
// holds. Used by cancellation and completion flows; returns how many
// rows were released.
func (m *Manager) ReleaseByReferenceTx(tx *gorm.DB, refType ReferenceType, refID uint, actor, reason string) (int, error) {
	reservations, err := m.ActiveByReferenceTx(tx, refType, refID)
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range reservations {
		if err := m.releaseRowTx(tx, &reservations[i], actor, reason, true); err != nil {
			if errs.IsAlreadyReleased(err) {
				continue
			}
			return released, err
		}
		released++
	}
	return released, nil
}

// forUpdate applies SELECT ... FOR UPDATE on dialects that support
// row locks. SQLite serializes writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
