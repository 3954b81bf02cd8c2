package migrate

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestRunnerAppliesStepsInOrderOnce(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)

	var applied []int
	r.Register(Step{Module: "index", Version: 2, Apply: func(tx *gorm.DB) error {
		applied = append(applied, 2)
		return nil
	}})
	r.Register(Step{Module: "index", Version: 1, Apply: func(tx *gorm.DB) error {
		applied = append(applied, 1)
		return nil
	}})

	require.NoError(t, r.Run())
	assert.Equal(t, []int{1, 2}, applied)

	applied = nil
	require.NoError(t, r.Run())
	assert.Empty(t, applied, "re-running must not re-apply already-recorded versions")
}

func TestRunnerTracksModulesIndependently(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)

	var order []string
	r.Register(Step{Module: "a", Version: 1, Apply: func(tx *gorm.DB) error {
		order = append(order, "a1")
		return nil
	}})
	r.Register(Step{Module: "b", Version: 1, Apply: func(tx *gorm.DB) error {
		order = append(order, "b1")
		return nil
	}})

	require.NoError(t, r.Run())
	assert.ElementsMatch(t, []string{"a1", "b1"}, order)
}
