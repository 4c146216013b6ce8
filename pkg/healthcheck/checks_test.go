package healthcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestComposite(t *testing.T) {
	errMySQL := errors.New("mysql down")
	errRedis := errors.New("redis down")

	okCheck := func(context.Context) error { return nil }
	failing := func(err error) Check {
		return func(context.Context) error { return err }
	}

	tests := []struct {
		name    string
		checks  []Check
		wantErr []error
	}{
		{name: "все зависимости доступны", checks: []Check{okCheck, okCheck}},
		{name: "без проверок", checks: nil},
		{name: "одна недоступна", checks: []Check{okCheck, failing(errRedis)}, wantErr: []error{errRedis}},
		{
			name:    "недоступны несколько",
			checks:  []Check{failing(errMySQL), okCheck, failing(errRedis)},
			wantErr: []error{errMySQL, errRedis},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Composite(tt.checks...)(context.Background())

			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	t.Run("доступен", func(t *testing.T) {
		assert.NoError(t, Redis(rdb)(context.Background()))
	})

	t.Run("недоступен", func(t *testing.T) {
		mr.Close()
		err := Redis(rdb)(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis ping")
	})
}

func TestMySQL(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mock.ExpectPing()

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	t.Run("доступна", func(t *testing.T) {
		mock.ExpectPing()
		assert.NoError(t, MySQL(db)(context.Background()))
	})

	t.Run("ping с ошибкой", func(t *testing.T) {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		err := MySQL(db)(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mysql ping")
	})
}

func TestKafka_NoBrokers(t *testing.T) {
	err := Kafka(nil)(context.Background())
	assert.Error(t, err)
}
