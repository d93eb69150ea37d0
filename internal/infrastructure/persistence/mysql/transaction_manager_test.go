package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-server/internal/domain/transaction"
)

var testPolicy = transaction.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}

func TestTransactionManager_WithTransaction(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}

	tests := []struct {
		name        string
		fn          func(attempt *int) func(ctx context.Context) error
		setupMock   func(mock sqlmock.Sqlmock)
		wantError   error
		wantAnyErr  bool
		wantRetries int
	}{
		{
			name: "正常系: トランザクション成功",
			fn: func(attempt *int) func(ctx context.Context) error {
				return func(ctx context.Context) error {
					_, ok := txFromContext(ctx)
					if !ok {
						return errors.New("transaction not in context")
					}
					return nil
				}
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectCommit()
			},
		},
		{
			name: "正常系: エラー発生時はロールバック",
			fn: func(attempt *int) func(ctx context.Context) error {
				return func(ctx context.Context) error { return errors.New("test error") }
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			},
			wantAnyErr: true,
		},
		{
			name: "異常系: Beginエラー",
			fn: func(attempt *int) func(ctx context.Context) error {
				return func(ctx context.Context) error { return nil }
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("begin error"))
			},
			wantAnyErr: true,
		},
		{
			name: "正常系: デッドロックは再実行して成功",
			fn: func(attempt *int) func(ctx context.Context) error {
				return func(ctx context.Context) error {
					*attempt++
					if *attempt == 1 {
						return deadlock
					}
					return nil
				}
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback()
				mock.ExpectBegin()
				mock.ExpectCommit()
			},
			wantRetries: 1,
		},
		{
			name: "異常系: 再実行回数を超えるとErrConflict",
			fn: func(attempt *int) func(ctx context.Context) error {
				return func(ctx context.Context) error { return deadlock }
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				for i := 0; i < 3; i++ {
					mock.ExpectBegin()
					mock.ExpectRollback()
				}
			},
			wantError:   transaction.ErrConflict,
			wantRetries: 2,
		},
		{
			name: "異常系: コミット時のロック待ちタイムアウトも再実行",
			fn: func(attempt *int) func(ctx context.Context) error {
				return func(ctx context.Context) error { return nil }
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectCommit().WillReturnError(&mysql.MySQLError{Number: 1205})
				mock.ExpectBegin()
				mock.ExpectCommit()
			},
			wantRetries: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer sqlDB.Close()

			tm := NewTransactionManager(&DB{DB: sqlDB}, testPolicy)
			retries := 0
			tm.OnRetry(func(ctx context.Context, attempt int, err error) { retries++ })

			tt.setupMock(mock)
			attempt := 0
			err = tm.WithTransaction(context.Background(), tt.fn(&attempt))

			switch {
			case tt.wantError != nil:
				assert.ErrorIs(t, err, tt.wantError)
			case tt.wantAnyErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantRetries, retries)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransactionManager_PanicRollsBack(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	tm := NewTransactionManager(&DB{DB: sqlDB}, testPolicy)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "test panic", func() {
		_ = tm.WithTransaction(context.Background(), func(ctx context.Context) error {
			panic("test panic")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_NestedJoinsOuterTransaction(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	tm := NewTransactionManager(&DB{DB: sqlDB}, testPolicy)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE rewards`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		outer, _ := txFromContext(ctx)
		return tm.WithTransaction(ctx, func(ctx context.Context) error {
			inner, _ := txFromContext(ctx)
			if inner != outer {
				return errors.New("nested call opened a new transaction")
			}
			_, err := inner.ExecContext(ctx, `UPDATE rewards SET stock_quantity = 0`)
			return err
		})
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
