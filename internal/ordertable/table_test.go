package ordertable

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/gatelink/gogate/internal/domain"
)

func TestMemoryTable(t *testing.T) {
	tbl := NewMemoryTable()

	if _, err := tbl.Get("o1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}

	if err := tbl.Put("o1", "alpha"); err != nil {
		t.Fatal(err)
	}
	gw, err := tbl.Get("o1")
	if err != nil || gw != "alpha" {
		t.Fatalf("get = %q, %v", gw, err)
	}

	if err := tbl.Delete("o1"); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Get("o1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err after delete = %v, want ErrOrderNotFound", err)
	}
}

func TestBadgerTable(t *testing.T) {
	tbl, err := OpenBadgerTable(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer tbl.Close()

	if err := tbl.Put("o1", "alpha"); err != nil {
		t.Fatal(err)
	}
	gw, err := tbl.Get("o1")
	if err != nil || gw != "alpha" {
		t.Fatalf("get = %q, %v", gw, err)
	}

	if _, err := tbl.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}

	if err := tbl.Delete("o1"); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Get("o1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err after delete = %v, want ErrOrderNotFound", err)
	}
}
