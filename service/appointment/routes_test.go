package appointment

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/solacehq/solace-server/cmd/models"
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

func TestValidateSlot(t *testing.T) {
	week := []models.WeeklyAvailability{
		{CounsellorID: 1, DayOfWeek: int(time.Monday), Enabled: true, StartTime: "09:00", EndTime: "12:00"},
		{CounsellorID: 1, DayOfWeek: int(time.Tuesday), Enabled: false, StartTime: "09:00", EndTime: "12:00"},
	}
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	tuesday := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	// inside the window, aligned to the grid
	assert.NoError(t, validateSlot(week, monday, 9*60, 60, now))
	assert.NoError(t, validateSlot(week, monday, 11*60, 60, now))

	// misaligned start
	assert.Error(t, validateSlot(week, monday, 9*60+30, 60, now))
	// runs past the window end
	assert.Error(t, validateSlot(week, monday, 11*60+0, 90, now))
	// before the window
	assert.Error(t, validateSlot(week, monday, 8*60, 60, now))
	// disabled day
	assert.Error(t, validateSlot(week, tuesday, 9*60, 60, now))
	// in the past
	assert.Error(t, validateSlot(week, monday, 9*60, 60, time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)))
	assert.Error(t, validateSlot(week, monday, 9*60, 60, time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)))
}

func TestBookAppointmentSlotConflict(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewAppointmentHandler(gdb, utils.NewKeyedMutex())

	mock.ExpectQuery(`SELECT (.+) FROM "counsellors"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "video_fee", "chat_fee"}).
			AddRow(3, 9, 500.0, 250.0))
	mock.ExpectQuery(`SELECT (.+) FROM "weekly_availabilities"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "counsellor_id", "day_of_week", "enabled", "start_time", "end_time"}).
			AddRow(1, 3, 1, true, "09:00", "17:00"))
	mock.ExpectBegin()
	// another pending booking already holds the interval
	mock.ExpectQuery(`SELECT (.+) FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "counsellor_id", "status"}).
			AddRow(5, 3, "pending"))
	mock.ExpectRollback()

	body := []byte(`{"counsellor_id": 3, "date": "2030-01-07", "start_time": "10:00", "session_type": "video"}`)
	r := authedRequest("POST", "/appointments/book", body, 7, "client")
	w := httptest.NewRecorder()

	h.BookAppointment(w, r)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already booked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookAppointmentOutsideAvailability(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewAppointmentHandler(gdb, utils.NewKeyedMutex())

	mock.ExpectQuery(`SELECT (.+) FROM "counsellors"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "video_fee", "chat_fee"}).
			AddRow(3, 9, 500.0, 250.0))
	// Monday only; request lands on a Tuesday
	mock.ExpectQuery(`SELECT (.+) FROM "weekly_availabilities"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "counsellor_id", "day_of_week", "enabled", "start_time", "end_time"}).
			AddRow(1, 3, 1, true, "09:00", "17:00"))

	body := []byte(`{"counsellor_id": 3, "date": "2030-01-08", "start_time": "10:00", "session_type": "video"}`)
	r := authedRequest("POST", "/appointments/book", body, 7, "client")
	w := httptest.NewRecorder()

	h.BookAppointment(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "outside the counsellor's availability")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookAppointmentRejectsPastSlot(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewAppointmentHandler(gdb, utils.NewKeyedMutex())

	mock.ExpectQuery(`SELECT (.+) FROM "counsellors"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "video_fee", "chat_fee"}).
			AddRow(3, 9, 500.0, 250.0))
	mock.ExpectQuery(`SELECT (.+) FROM "weekly_availabilities"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "counsellor_id", "day_of_week", "enabled", "start_time", "end_time"}).
			AddRow(1, 3, 1, true, "09:00", "17:00"))

	body := []byte(`{"counsellor_id": 3, "date": "2020-01-06", "start_time": "10:00", "session_type": "video"}`)
	r := authedRequest("POST", "/appointments/book", body, 7, "client")
	w := httptest.NewRecorder()

	h.BookAppointment(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "past")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookAppointmentRejectsUnknownSessionType(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewAppointmentHandler(gdb, utils.NewKeyedMutex())

	mock.ExpectQuery(`SELECT (.+) FROM "counsellors"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "video_fee", "chat_fee"}).
			AddRow(3, 9, 500.0, 250.0))

	body := []byte(`{"counsellor_id": 3, "date": "2030-01-07", "start_time": "10:00", "session_type": "voice"}`)
	r := authedRequest("POST", "/appointments/book", body, 7, "client")
	w := httptest.NewRecorder()

	h.BookAppointment(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "session_type")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepCompletedOnlyTouchesConfirmed(t *testing.T) {
	gdb, mock := newMockDB(t)

	now := time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE "appointments" SET`).
		WithArgs("completed", sqlmock.AnyArg(), "confirmed", "2026-09-07", "2026-09-07", "12:00").
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := SweepCompleted(gdb, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())

	// a second run with nothing left to move is a no-op
	mock.ExpectExec(`UPDATE "appointments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	affected, err = SweepCompleted(gdb, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

func TestCancelAppointmentNotCancellable(t *testing.T) {
	gdb, mock := newMockDB(t)
	h := NewAppointmentHandler(gdb, utils.NewKeyedMutex())

	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT (.+) FROM "appointments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "counsellor_id", "appointment_date", "status", "payment_status"}).
			AddRow(5, 7, 3, day, "completed", "completed"))
	mock.ExpectQuery(`SELECT (.+) FROM "counsellors"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(3, 9))
	// the guarded update matches no rows because the status is terminal
	mock.ExpectExec(`UPDATE "appointments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	r := authedRequest("PATCH", "/appointments/5/cancel", []byte(`{"reason":"conflict"}`), 7, "client")
	r = mux.SetURLVars(r, map[string]string{"id": "5"})
	w := httptest.NewRecorder()

	h.CancelAppointment(w, r)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "no longer be cancelled")
	assert.NoError(t, mock.ExpectationsWereMet())
}
