package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	fsStore, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: t.TempDir(), FSBaseURL: "https://img.example.org/blobs"})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	memStore, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	return map[string]Store{"fs": fsStore, "memory": memStore}
}

func TestStoreContract(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "territories/t1/map.png"
			info, err := store.Put(ctx, key, strings.NewReader("png-bytes"), PutOptions{
				ContentType: "image/png",
				Metadata:    map[string]string{"territory": "t1"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != int64(len("png-bytes")) || info.ContentType != "image/png" || info.ETag == "" {
				t.Fatalf("unexpected info %+v", info)
			}
			if _, err := store.Put(ctx, key, strings.NewReader("again"), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}

			got, rc, err := store.Get(ctx, key)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(body) != "png-bytes" || got.Metadata["territory"] != "t1" {
				t.Fatalf("unexpected blob %q %+v", body, got)
			}

			if _, err := store.Put(ctx, "exports/a.json", bytes.NewReader([]byte("{}")), PutOptions{}); err != nil {
				t.Fatalf("put export: %v", err)
			}
			list, err := store.List(ctx, "territories/")
			if err != nil || len(list) != 1 || list[0].Key != key {
				t.Fatalf("list prefix: %v %+v", err, list)
			}
			all, _ := store.List(ctx, "")
			if len(all) != 2 || all[0].Key != "exports/a.json" {
				t.Fatalf("expected key ordered listing, got %+v", all)
			}

			url, err := store.PresignURL(ctx, key, SignedURLOptions{})
			if err != nil || url == "" {
				t.Fatalf("presign: %q %v", url, err)
			}
			if _, err := store.PresignURL(ctx, key, SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
				t.Fatalf("expected unsupported PUT presign, got %v", err)
			}

			if ok, err := store.Delete(ctx, key); err != nil || !ok {
				t.Fatalf("delete: %v %v", ok, err)
			}
			if ok, err := store.Delete(ctx, key); err != nil || ok {
				t.Fatalf("second delete should report missing: %v %v", ok, err)
			}
			if _, err := store.Head(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on get, got %v", err)
			}
		})
	}
}

func TestStoresRejectEscapingKeys(t *testing.T) {
	for name, store := range openStores(t) {
		for _, key := range []string{"", "  ", "/abs", "a/../../b", `a\b`} {
			if _, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
				t.Fatalf("%s: expected key %q to be rejected", name, key)
			}
		}
	}
}

func TestFilesystemURLUsesBaseURL(t *testing.T) {
	store := openStores(t)["fs"]
	info, err := store.Put(context.Background(), "territories/t9.jpg", strings.NewReader("x"), PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.URL != "https://img.example.org/blobs/territories/t9.jpg" {
		t.Fatalf("unexpected url %s", info.URL)
	}
}

func TestOpenDefaultsAndUnknownDriver(t *testing.T) {
	store, err := Open(context.Background(), Config{FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected filesystem default, got %s", store.Driver())
	}
	if _, err := Open(context.Background(), Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(context.Background(), Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
