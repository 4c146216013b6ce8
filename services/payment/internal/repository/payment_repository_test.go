// Package repository содержит unit тесты для PaymentRepository.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/payment-gateway/pkg/kafka"
	"example.com/payment-gateway/pkg/outbox"
	"example.com/payment-gateway/services/payment/internal/domain"
)

// =====================================
// Вспомогательные функции
// =====================================

// setupMockDB создает мок базы данных с GORM.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Ошибка создания sqlmock")
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Ошибка инициализации GORM")

	return gormDB, mock
}

func newPayment(t *testing.T) *domain.Payment {
	t.Helper()
	p, err := domain.NewPayment("REF-1", decimal.RequireFromString("100.50"), "USD",
		domain.MethodCreditCard, "STRIPE", "cust-1", "merch-1", "order #1")
	require.NoError(t, err)
	return p
}

var paymentColumns = []string{
	"id", "payment_reference", "amount", "currency", "payment_method", "gateway_provider",
	"gateway_transaction_id", "provider_reference", "refund_transaction_id", "customer_id", "merchant_id", "description",
	"failure_reason", "status", "created_at", "updated_at", "completed_at", "version",
}

func paymentRow(rows *sqlmock.Rows, id, status string, version int64) *sqlmock.Rows {
	created := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	updated := created.Add(time.Minute)
	txn := "pi_" + id
	return rows.AddRow(id, "REF-"+id, "100.50", "USD", "CREDIT_CARD", "STRIPE",
		txn, nil, nil, "cust-1", "merch-1", "order",
		nil, status, created, updated, updated, version)
}

// =====================================
// Тесты Save
// =====================================

func TestSave_Insert(t *testing.T) {
	tests := []struct {
		name        string
		withEvent   bool
		mockSetup   func(mock sqlmock.Sqlmock)
		expectedErr error
	}{
		{
			name: "успешное создание",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payments`")).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name:      "создание с событием outbox",
			withEvent: true,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payments`")).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payment_outbox`")).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "дубликат reference",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payments`")).
					WillReturnError(errors.New("Error 1062: Duplicate entry 'REF-1'"))
				mock.ExpectRollback()
			},
			expectedErr: domain.ErrDuplicateReference,
		},
		{
			name:      "ошибка outbox откатывает платеж",
			withEvent: true,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payments`")).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payment_outbox`")).
					WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			expectedErr: sql.ErrConnDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, mock := setupMockDB(t)
			repo := NewPaymentRepository(gormDB)
			tt.mockSetup(mock)

			p := newPayment(t)
			var events []*outbox.Message
			if tt.withEvent {
				msg, err := outbox.NewMessage(p.ID(), "payment.created", kafka.TopicPaymentEvents, p.ID(),
					map[string]string{"id": p.ID()}, nil)
				require.NoError(t, err)
				events = append(events, msg)
			}

			err := repo.Save(context.Background(), p, events...)

			if tt.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.True(t, p.IsNew(), "после ошибки агрегат остается новым")
			} else {
				require.NoError(t, err)
				assert.False(t, p.IsNew())
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSave_Update(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		expectedErr  error
	}{
		{name: "успешное обновление", rowsAffected: 1},
		{name: "конфликт версий", rowsAffected: 0, expectedErr: domain.ErrVersionConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, mock := setupMockDB(t)
			repo := NewPaymentRepository(gormDB)

			p := domain.Restore(newPayment(t).Snapshot())
			require.NoError(t, p.MarkAsProcessing())
			require.EqualValues(t, 1, p.Version())

			mock.ExpectBegin()
			exec := mock.ExpectExec(regexp.QuoteMeta("UPDATE `payments` SET")).
				WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					"PROCESSING", sqlmock.AnyArg(), int64(1), p.ID(), int64(0))
			exec.WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))
			if tt.expectedErr != nil {
				mock.ExpectRollback()
			} else {
				mock.ExpectCommit()
			}

			err := repo.Save(context.Background(), p)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.EqualValues(t, 0, p.PersistedVersion())
			} else {
				require.NoError(t, err)
				assert.EqualValues(t, 1, p.PersistedVersion())
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// =====================================
// Тесты поиска
// =====================================

func TestFindByID(t *testing.T) {
	t.Run("найден", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := NewPaymentRepository(gormDB)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `payments` WHERE id = ?")).
			WillReturnRows(paymentRow(sqlmock.NewRows(paymentColumns), "pay-1", "COMPLETED", 3))

		p, err := repo.FindByID(context.Background(), "pay-1")

		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "pay-1", p.ID())
		assert.Equal(t, domain.StatusCompleted, p.Status())
		assert.True(t, p.Amount().Equal(decimal.RequireFromString("100.50")))
		assert.Equal(t, domain.MethodCreditCard, p.PaymentMethod())
		require.NotNil(t, p.GatewayTransactionID())
		assert.Equal(t, "pi_pay-1", *p.GatewayTransactionID())
		assert.EqualValues(t, 3, p.Version())
		assert.False(t, p.IsNew())
		assert.EqualValues(t, 3, p.PersistedVersion())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("не найден", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := NewPaymentRepository(gormDB)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `payments` WHERE id = ?")).
			WillReturnRows(sqlmock.NewRows(paymentColumns))

		p, err := repo.FindByID(context.Background(), "missing")

		assert.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("ошибка БД", func(t *testing.T) {
		gormDB, mock := setupMockDB(t)
		repo := NewPaymentRepository(gormDB)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `payments` WHERE id = ?")).
			WillReturnError(sql.ErrConnDone)

		p, err := repo.FindByID(context.Background(), "pay-1")

		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.Nil(t, p)
	})
}

func TestFindByReference(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewPaymentRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `payments` WHERE payment_reference = ?")).
		WillReturnRows(paymentRow(sqlmock.NewRows(paymentColumns), "pay-7", "PENDING", 0))

	p, err := repo.FindByReference(context.Background(), "REF-pay-7")

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "REF-pay-7", p.PaymentReference())
}

func TestFindLists(t *testing.T) {
	tests := []struct {
		name  string
		query string
		call  func(repo PaymentRepository) ([]*domain.Payment, error)
	}{
		{
			name:  "по клиенту",
			query: "SELECT * FROM `payments` WHERE customer_id = ? ORDER BY created_at DESC",
			call: func(repo PaymentRepository) ([]*domain.Payment, error) {
				return repo.FindByCustomerID(context.Background(), "cust-1")
			},
		},
		{
			name:  "по мерчанту",
			query: "SELECT * FROM `payments` WHERE merchant_id = ? ORDER BY created_at DESC",
			call: func(repo PaymentRepository) ([]*domain.Payment, error) {
				return repo.FindByMerchantID(context.Background(), "merch-1")
			},
		},
		{
			name:  "по статусу",
			query: "SELECT * FROM `payments` WHERE status = ? ORDER BY created_at DESC",
			call: func(repo PaymentRepository) ([]*domain.Payment, error) {
				return repo.FindByStatus(context.Background(), domain.StatusCompleted)
			},
		},
		{
			name:  "по провайдеру",
			query: "SELECT * FROM `payments` WHERE gateway_provider = ? ORDER BY created_at DESC",
			call: func(repo PaymentRepository) ([]*domain.Payment, error) {
				return repo.FindByGatewayProvider(context.Background(), "STRIPE")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, mock := setupMockDB(t)
			repo := NewPaymentRepository(gormDB)

			rows := sqlmock.NewRows(paymentColumns)
			paymentRow(rows, "pay-1", "COMPLETED", 2)
			paymentRow(rows, "pay-2", "COMPLETED", 2)
			mock.ExpectQuery(regexp.QuoteMeta(tt.query)).WillReturnRows(rows)

			payments, err := tt.call(repo)

			require.NoError(t, err)
			require.Len(t, payments, 2)
			assert.Equal(t, "pay-1", payments[0].ID())
			assert.Equal(t, "pay-2", payments[1].ID())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFindLists_Empty(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewPaymentRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `payments` WHERE customer_id = ?")).
		WillReturnRows(sqlmock.NewRows(paymentColumns))

	payments, err := repo.FindByCustomerID(context.Background(), "nobody")

	require.NoError(t, err)
	assert.NotNil(t, payments)
	assert.Empty(t, payments)
}

func TestList_WithFilters(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewPaymentRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `payments` WHERE merchant_id = ? AND customer_id = ? AND status = ? ORDER BY created_at DESC")).
		WillReturnRows(paymentRow(sqlmock.NewRows(paymentColumns), "pay-3", "FAILED", 2))

	payments, err := repo.List(context.Background(), Filter{
		MerchantID: "merch-1",
		CustomerID: "cust-1",
		Status:     domain.StatusFailed,
		Limit:      20,
	})

	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.StatusFailed, payments[0].Status())
}

func TestFindStuckProcessing(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewPaymentRepository(gormDB)
	before := time.Now().Add(-5 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `payments` WHERE status = ? AND COALESCE(updated_at, created_at) < ? ORDER BY created_at ASC")).
		WillReturnRows(paymentRow(sqlmock.NewRows(paymentColumns), "pay-9", "PROCESSING", 1))

	payments, err := repo.FindStuckProcessing(context.Background(), before, 50)

	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.StatusProcessing, payments[0].Status())
}

// =====================================
// Тесты счетчиков и удаления
// =====================================

func TestExistsByReference(t *testing.T) {
	tests := []struct {
		name  string
		count int64
		want  bool
	}{
		{"существует", 1, true},
		{"не существует", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gormDB, mock := setupMockDB(t)
			repo := NewPaymentRepository(gormDB)

			mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `payments` WHERE payment_reference = ?")).
				WithArgs("REF-1").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))

			exists, err := repo.ExistsByReference(context.Background(), "REF-1")

			require.NoError(t, err)
			assert.Equal(t, tt.want, exists)
		})
	}
}

func TestCountByStatus(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewPaymentRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `payments` WHERE status = ?")).
		WithArgs("COMPLETED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := repo.CountByStatus(context.Background(), domain.StatusCompleted)

	require.NoError(t, err)
	assert.EqualValues(t, 42, count)
}

func TestDelete(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := NewPaymentRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `payments` WHERE id = ?")).
		WithArgs("pay-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "pay-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
