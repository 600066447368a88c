package availability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
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

func authedPut(counsellorID string, body []byte, userID uint, role string) *http.Request {
	r := httptest.NewRequest("PUT", "/counsellors/"+counsellorID+"/availability", bytes.NewReader(body))
	ctx := context.WithValue(r.Context(), utils.UserIDKey, userID)
	ctx = context.WithValue(ctx, utils.RoleKey, role)
	r = r.WithContext(ctx)
	return mux.SetURLVars(r, map[string]string{"counsellorId": counsellorID})
}

func counsellorRow(mock sqlmock.Sqlmock, id, userID uint) {
	mock.ExpectQuery(`SELECT (.+) FROM "counsellors"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(id, userID))
}

func TestPutWeeklyAvailabilityRejectsForeignCounsellor(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewAvailabilityHandler(gdb)

	counsellorRow(mock, 3, 7)

	body := []byte(`[{"day_of_week":1,"enabled":true,"start_time":"09:00","end_time":"17:00"}]`)
	r := authedPut("3", body, 99, "counsellor")
	w := httptest.NewRecorder()

	h.PutWeeklyAvailability(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutWeeklyAvailabilityRejectsInvertedWindow(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewAvailabilityHandler(gdb)

	counsellorRow(mock, 3, 7)

	body := []byte(`[{"day_of_week":1,"enabled":true,"start_time":"17:00","end_time":"09:00"}]`)
	r := authedPut("3", body, 7, "counsellor")
	w := httptest.NewRecorder()

	h.PutWeeklyAvailability(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "End time must be after start time")
}

func TestPutWeeklyAvailabilityRejectsDuplicateDay(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewAvailabilityHandler(gdb)

	counsellorRow(mock, 3, 7)

	body := []byte(`[
		{"day_of_week":1,"enabled":true,"start_time":"09:00","end_time":"12:00"},
		{"day_of_week":1,"enabled":true,"start_time":"13:00","end_time":"17:00"}
	]`)
	r := authedPut("3", body, 7, "counsellor")
	w := httptest.NewRecorder()

	h.PutWeeklyAvailability(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Duplicate day_of_week")
}

func TestPutWeeklyAvailabilityRejectsBadClock(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewAvailabilityHandler(gdb)

	counsellorRow(mock, 3, 7)

	body := []byte(`[{"day_of_week":2,"enabled":true,"start_time":"9am","end_time":"17:00"}]`)
	r := authedPut("3", body, 7, "counsellor")
	w := httptest.NewRecorder()

	h.PutWeeklyAvailability(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPutWeeklyAvailabilityDisabledDaySkipsClockChecks(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewAvailabilityHandler(gdb)

	counsellorRow(mock, 3, 7)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "weekly_availabilities"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "weekly_availabilities"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	// Disabled days may carry empty times
	body := []byte(`[{"day_of_week":5,"enabled":false,"start_time":"","end_time":""}]`)
	r := authedPut("3", body, 7, "counsellor")
	w := httptest.NewRecorder()

	h.PutWeeklyAvailability(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
