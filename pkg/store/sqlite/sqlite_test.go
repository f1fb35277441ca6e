package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formwizard/pkg/refdata"
	"github.com/goliatone/go-formwizard/pkg/store"
	"github.com/goliatone/go-formwizard/pkg/store/sqlite"
)

func openDB(t *testing.T) *sqlite.DB {
	t.Helper()
	clock := func() time.Time { return time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC) }
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "wizard.db"), sqlite.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestReferenceDataImportAndList(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	ctx := context.Background()

	require.NoError(t, db.ImportStatic(ctx, refdata.Static{
		"states": {"": {{Value: "TS", Label: "Telangana"}, {Value: "AP", Label: "Andhra Pradesh"}}},
		"districts": {
			"TS": {{Value: "WGL", Label: "Warangal"}},
		},
	}))

	states, err := db.List(ctx, "states", "")
	require.NoError(t, err)
	require.Equal(t, []refdata.Option{{Value: "TS", Label: "Telangana"}, {Value: "AP", Label: "Andhra Pradesh"}}, states)

	districts, err := db.List(ctx, "districts", "AP")
	require.NoError(t, err)
	require.Empty(t, districts)

	_, err = db.List(ctx, "crops", "")
	require.ErrorIs(t, err, refdata.ErrUnknownSource)

	require.NoError(t, db.ImportOptions(ctx, "districts", "TS", []refdata.Option{{Value: "HYD", Label: "Hyderabad"}}))
	districts, err = db.List(ctx, "districts", "TS")
	require.NoError(t, err)
	require.Equal(t, []refdata.Option{{Value: "HYD", Label: "Hyderabad"}}, districts)
}

func TestSnapshots(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSnapshot(ctx, "s-1", "farmer", []byte(`{"step":1}`)))
	require.NoError(t, db.SaveSnapshot(ctx, "s-1", "farmer", []byte(`{"step":2}`)))

	wizard, data, err := db.LoadSnapshot(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, "farmer", wizard)
	require.JSONEq(t, `{"step":2}`, string(data))

	infos, err := db.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	require.NoError(t, db.DeleteSnapshot(ctx, "s-1"))
	_, _, err = db.LoadSnapshot(ctx, "s-1")
	require.ErrorIs(t, err, sqlite.ErrSnapshotNotFound)
}

func TestEntitiesMergeOnUpdate(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	ctx := context.Background()
	farmers := db.Entities("farmers")

	id, err := farmers.Create(ctx, map[string]any{"fullName": "Ravi", "bankName": "SBI"}, store.Files{
		"photo": {Name: "ravi.png", ContentType: "image/png", Data: []byte("png")},
	})
	require.NoError(t, err)

	_, err = farmers.Update(ctx, id, map[string]any{"bankName": "Canara"}, nil)
	require.NoError(t, err)

	entity, err := farmers.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Ravi", entity["fullName"])
	require.Equal(t, "Canara", entity["bankName"])
	require.Equal(t, "ravi.png", entity["photo"])
	require.Equal(t, id, entity.ID())

	file, err := farmers.File(ctx, id, "photo")
	require.NoError(t, err)
	require.Equal(t, []byte("png"), file.Data)

	_, err = db.Entities("employees").GetByID(ctx, id)
	require.ErrorIs(t, err, store.ErrNotFound)
}
