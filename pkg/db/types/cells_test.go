package dbtypes

import "testing"

func TestCellsScanRoundTripsThroughDriverValue(t *testing.T) {
	in := Cells{"pay_1", "", "山田 太郎", `quote "x"`}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var out Cells
	if err := out.Scan([]byte(v.(string))); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d cells, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("cell %d: expected %q got %q", i, in[i], out[i])
		}
	}
}

func TestCellsScanNilAndInvalid(t *testing.T) {
	var c Cells
	if err := c.Scan(nil); err != nil || len(c) != 0 {
		t.Fatalf("nil should scan to empty, got %v err=%v", c, err)
	}
	if err := c.Scan(42); err == nil {
		t.Fatal("expected unsupported type error")
	}
	if err := c.Scan("{not json"); err == nil {
		t.Fatal("expected parse error")
	}
}
