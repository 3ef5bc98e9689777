package fixed_test

import (
	"testing"

	"github.com/gorcp/rcq/fixed"
)

func TestConversions(t *testing.T) {
	if got := fixed.UInt14_2U(320); got != 320<<2 {
		t.Errorf("UInt14_2U(320) = %#x", uint16(got))
	}
	if got := fixed.Int11_5U(-7); got != -7<<5 {
		t.Errorf("Int11_5U(-7) = %#x", uint16(got))
	}
	if got := fixed.Int6_10F(4.0); got != 4<<10 {
		t.Errorf("Int6_10F(4.0) = %#x", uint16(got))
	}
	if got := fixed.Int6_10F(0.25); got != 1<<8 {
		t.Errorf("Int6_10F(0.25) = %#x", uint16(got))
	}
}

func TestFloor(t *testing.T) {
	if got := fixed.UInt14_2F(2.75).Floor(); got != 2 {
		t.Errorf("Floor(2.75) = %d", got)
	}
	if got := fixed.Int11_5F(-1.5).Floor(); got != -2 {
		t.Errorf("Floor(-1.5) = %d", got)
	}
}

func TestMulDiv(t *testing.T) {
	a, b := fixed.Int6_10F(1.5), fixed.Int6_10F(2)
	if got := a.Mul(b); got != fixed.Int6_10F(3) {
		t.Errorf("1.5 * 2 = %v", got)
	}
	if got := a.Div(b); got != fixed.Int6_10F(0.75) {
		t.Errorf("1.5 / 2 = %v", got)
	}
}
