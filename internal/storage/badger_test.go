package storage

import "testing"

func TestBadgerSetGetDelete(t *testing.T) {
	st, err := NewBadgerStorage(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer st.Close()

	txn, err := st.Begin(true)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := txn.Set(TableSPO, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := txn.Set(TableSPO, []byte("k2"), []byte("v2")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	txn, err = st.Begin(false)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer txn.Rollback()

	v, err := txn.Get(TableSPO, []byte("k1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "v1" {
		t.Errorf("expected v1, got %q", v)
	}

	if _, err := txn.Get(TableSPO, []byte("missing")); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	it, err := txn.Scan(TableSPO, nil, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer it.Close()

	count := 0
	for it.Next() {
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 keys, got %d", count)
	}
}

func TestBadgerReadOnlyRejectsWrites(t *testing.T) {
	st, err := NewBadgerStorage(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer st.Close()

	txn, err := st.Begin(false)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer txn.Rollback()

	if err := txn.Set(TableSPO, []byte("k"), []byte("v")); err != ErrTransactionRO {
		t.Errorf("expected ErrTransactionRO, got %v", err)
	}
}
