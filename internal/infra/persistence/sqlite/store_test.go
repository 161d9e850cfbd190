package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"territorycore/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	var houseID string
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		terr, err := tx.CreateTerritory(domain.Territory{Number: 12})
		if err != nil {
			return err
		}
		addr, err := tx.CreateAddress(domain.Address{TerritoryID: terr.ID, Address: "Main 1"})
		if err != nil {
			return err
		}
		house, err := tx.CreateHouse(domain.House{AddressID: addr.ID, Number: "3"})
		if err != nil {
			return err
		}
		houseID = house.ID
		if _, err := tx.PutTokenTerritory(domain.TokenTerritory{TokenID: "k", TerritoryID: terr.ID}); err != nil {
			return err
		}
		_, err = tx.PutRecall(domain.Recall{UserID: "u", HouseID: house.ID})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if reloaded.Path() != path {
		t.Fatalf("expected path %s, got %s", path, reloaded.Path())
	}
	err = reloaded.View(context.Background(), func(v domain.TransactionView) error {
		if got := len(v.ListTerritories()); got != 1 {
			t.Fatalf("expected 1 territory, got %d", got)
		}
		if got := len(v.ListTokenTerritories()); got != 1 {
			t.Fatalf("expected 1 key link, got %d", got)
		}
		if _, ok := v.FindHouse(houseID); !ok {
			t.Fatalf("expected house %s", houseID)
		}
		if _, ok := v.FindRecall("u", houseID); !ok {
			t.Fatalf("expected recall reloaded")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSQLiteStoreWritesEveryBucket(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateVisit(domain.Visit{HouseID: "h", Symbol: "x"})
		return err
	}); err != nil {
		t.Fatalf("create visit: %v", err)
	}
	var n int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&n); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if n != 11 {
		t.Fatalf("expected 11 buckets, got %d", n)
	}
}

func TestSQLiteStoreFailedTransactionSkipsPersist(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteHouse("missing")
	})
	if err == nil {
		t.Fatalf("expected not found error")
	}
	var n int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&n); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing persisted, got %d rows", n)
	}
}
