package memory

import (
	"context"
	"testing"
	"time"

	"territorycore/pkg/domain"
)

func createTerritory(t *testing.T, store *Store, number int32) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateTerritory(domain.Territory{Number: number})
		return err
	})
	if err != nil {
		t.Fatalf("create territory: %v", err)
	}
}

func TestWatchCoalescesPendingNotifications(t *testing.T) {
	store := fixedStore(t)
	ch, cancel := store.Watch()
	defer cancel()

	createTerritory(t, store, 1)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateVisit(domain.Visit{HouseID: "h"})
		return err
	})
	if err != nil {
		t.Fatalf("create visit: %v", err)
	}

	select {
	case n := <-ch:
		if n.Seq != 2 {
			t.Fatalf("expected coalesced seq 2, got %d", n.Seq)
		}
		if !n.Touches(domain.EntityTerritory) || !n.Touches(domain.EntityVisit) {
			t.Fatalf("expected merged kinds, got %v", n.Kinds)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected notification")
	}
	select {
	case n := <-ch:
		t.Fatalf("expected a single coalesced notification, got extra %+v", n)
	default:
	}
}

func TestWatchFiltersKinds(t *testing.T) {
	store := fixedStore(t)
	ch, cancel := store.Watch(domain.EntityVisit)
	defer cancel()

	createTerritory(t, store, 1)
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification for unwatched kind: %+v", n)
	default:
	}
}

func TestWatchSkipsNoopTransactions(t *testing.T) {
	store := fixedStore(t)
	ch, cancel := store.Watch()
	defer cancel()
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return nil }); err != nil {
		t.Fatalf("noop transaction: %v", err)
	}
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification for empty commit: %+v", n)
	default:
	}
}

func TestWatchCancelClosesChannel(t *testing.T) {
	store := fixedStore(t)
	ch, cancel := store.Watch()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	createTerritory(t, store, 3)
}

func TestImportStateNotifiesAllKinds(t *testing.T) {
	store := fixedStore(t)
	ch, cancel := store.Watch(domain.EntityRecall)
	defer cancel()
	store.ImportState(Snapshot{})
	select {
	case n := <-ch:
		if len(n.Kinds) != len(domain.AllEntityTypes) {
			t.Fatalf("expected all kinds, got %v", n.Kinds)
		}
	default:
		t.Fatalf("expected notification after import")
	}
}
