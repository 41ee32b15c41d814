package records

import (
	"testing"

	"github.com/surrealdb/surrealdb.go/contrib/testenv"
)

// testSurreal connects to the server named by SURREALDB_URL (default
// localhost:8000) with a freshly emptied table. Tests are skipped when no
// server answers.
func testSurreal(t *testing.T) Store {
	t.Helper()
	if testing.Short() {
		t.Skip("surrealdb integration test skipped in short mode")
	}
	db, err := testenv.New("capes_test", "records", surrealTable)
	if err != nil {
		t.Skipf("surrealdb not available: %v", err)
	}
	s := NewSurreal(db)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSurrealStore(t *testing.T) {
	runStoreSuite(t, testSurreal)
}
