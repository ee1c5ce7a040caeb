package farmers

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRow feeds a fixed column tuple through Scan the way a pgx row would.
// A nil value stands for SQL NULL and requires a pointer destination.
type stubRow struct {
	vals []any
}

func (r stubRow) Scan(dest ...any) error {
	if len(dest) != len(r.vals) {
		return fmt.Errorf("expected %d destinations, got %d", len(r.vals), len(dest))
	}
	for i, v := range r.vals {
		dv := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			if dv.Kind() != reflect.Pointer {
				return fmt.Errorf("cannot scan NULL into %s", dv.Type())
			}
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		if dv.Kind() == reflect.Pointer && dv.Type().Elem() == reflect.TypeOf(v) {
			p := reflect.New(dv.Type().Elem())
			p.Elem().Set(reflect.ValueOf(v))
			dv.Set(p)
			continue
		}
		dv.Set(reflect.ValueOf(v))
	}
	return nil
}

func farmerRow(phone any, rating any) stubRow {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return stubRow{vals: []any{
		int64(200), "FRM-2024-0042", "Wanjiku Mwangi", phone, "0123456789", now, now,
		int64(200), int64(1), true, 3, 25380.0, rating, now,
	}}
}

func TestScanWithStats(t *testing.T) {
	t.Run("null phone and quality rating scan cleanly", func(t *testing.T) {
		ws, err := scanWithStats(farmerRow(nil, nil))
		require.NoError(t, err)
		assert.Nil(t, ws.Phone)
		assert.Nil(t, ws.QualityRating)
		assert.Equal(t, "Wanjiku Mwangi", ws.Name)
		assert.Equal(t, 3, ws.TotalDeliveries)
		assert.Equal(t, 25380.0, ws.TotalEarnings)
	})

	t.Run("populated columns carry through", func(t *testing.T) {
		ws, err := scanWithStats(farmerRow("+254712345678", 4.5))
		require.NoError(t, err)
		require.NotNil(t, ws.Phone)
		assert.Equal(t, "+254712345678", *ws.Phone)
		require.NotNil(t, ws.QualityRating)
		assert.Equal(t, 4.5, *ws.QualityRating)
	})
}
