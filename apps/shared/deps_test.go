package shared

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
	testutil "github.com/trezcool/attendance/tests"
)

func TestOpenRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown engine", func(t *testing.T) {
		conf := core.NewTestConfig()
		conf.Database.Engine = "mongo"
		_, _, err := OpenRepository(ctx, conf)
		assert.EqualError(t, err, `unknown database engine "mongo"`)
	})

	tests := []struct {
		name   string
		engine string
		path   string
	}{
		{name: "default", engine: ""},
		{name: "inmem", engine: "inmem"},
		{name: "sqlite", engine: "sqlite", path: filepath.Join(t.TempDir(), "data", "attendance.db")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Database.Engine = tt.engine
			conf.Database.Path = tt.path

			repo, closeRepo, err := OpenRepository(ctx, conf)
			require.NoError(t, err)
			defer func() { assert.NoError(t, closeRepo()) }()

			testutil.CreateScanRecord(t, repo, "sess", "S1", session.StatusMatched, time.Now(), 1)
			recs, err := repo.QueryScanRecords(ctx, "sess", nil)
			require.NoError(t, err)
			assert.Len(t, recs, 1)
		})
	}
}

func TestNewValidator(t *testing.T) {
	validate, translator := NewValidator()
	err := validate.Var("lol", "email")
	require.IsType(t, validator.ValidationErrors{}, err)
	assert.Equal(t, "enter a valid email address", err.(validator.ValidationErrors)[0].Translate(translator))
}

func TestDescribeDatabase(t *testing.T) {
	conf := core.NewTestConfig()
	assert.Equal(t, "in memory", DescribeDatabase(conf))

	conf.Database = core.DatabaseConfig{Engine: "sqlite", Path: "/tmp/a.db"}
	assert.Equal(t, "sqlite (/tmp/a.db)", DescribeDatabase(conf))

	conf.Database = core.DatabaseConfig{Engine: "postgres", Host: "db", Port: 5432, Name: "attendance"}
	assert.Equal(t, "postgres (db:5432/attendance)", DescribeDatabase(conf))
}
