package payment

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/solacehq/solace-server/cmd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)
	return gdb, mock
}

func authedRequest(method, target string, body []byte, userID uint, role string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	ctx := context.WithValue(r.Context(), utils.UserIDKey, userID)
	ctx = context.WithValue(ctx, utils.RoleKey, role)
	return r.WithContext(ctx)
}

func TestRequestWithdrawalBelowMinimum(t *testing.T) {
	// rejected before any database work
	h := NewPaymentHandler(nil, utils.NewKeyedMutex())

	r := authedRequest("POST", "/withdrawals", []byte(`{"amount": 50}`), 7, "counsellor")
	w := httptest.NewRecorder()

	h.RequestWithdrawal(w, r)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "below the minimum")
}

func TestRequestWithdrawalInsufficientBalance(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewPaymentHandler(gdb, utils.NewKeyedMutex())

	mock.ExpectQuery(`SELECT (.+) FROM "counsellors" WHERE user_id =`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(3, 7))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(counsellor_amount\), 0\) FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(400.0))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM "withdrawal_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(250.0))
	mock.ExpectRollback()

	r := authedRequest("POST", "/withdrawals", []byte(`{"amount": 200}`), 7, "counsellor")
	w := httptest.NewRecorder()

	h.RequestWithdrawal(w, r)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds withdrawable balance")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestWithdrawalCreatesPendingRequest(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewPaymentHandler(gdb, utils.NewKeyedMutex())

	mock.ExpectQuery(`SELECT (.+) FROM "counsellors" WHERE user_id =`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(3, 7))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(counsellor_amount\), 0\) FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(400.0))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM "withdrawal_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(150.0))
	mock.ExpectQuery(`INSERT INTO "withdrawal_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	r := authedRequest("POST", "/withdrawals", []byte(`{"amount": 250}`), 7, "counsellor")
	w := httptest.NewRecorder()

	h.RequestWithdrawal(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"pending"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawableBalance(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(counsellor_amount\), 0\) FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1234.56))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM "withdrawal_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(234.56))

	balance, err := WithdrawableBalance(gdb, 3)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, balance, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
