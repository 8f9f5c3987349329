package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"80", 8000, true},
		{"0", 0, true},
		{"12.34", 1234, true},
		{"12,34", 1234, true},
		{"12.345", 1235, true},
		{"12.344", 1234, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-1", 0, false},
		{"1000000000", MaxAmount, true},
		{"1000000000.01", 0, false},
		{"200000000000000000", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok && (err != nil || got.Cents != tc.want) {
			t.Fatalf("%q: got %d, %v; want %d", tc.in, got.Cents, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.in)
		}
	}
}

func TestMoneyFormatting(t *testing.T) {
	m := Money{Cents: 1250}
	if m.String() != "12.5" || m.Fixed() != "12.50" || m.Rounded() != 13 {
		t.Fatalf("got %s %s %d", m.String(), m.Fixed(), m.Rounded())
	}
	if Units(80).String() != "80" {
		t.Fatalf("units = %s", Units(80).String())
	}
}

func TestMoneyJSON(t *testing.T) {
	var p PriceTable
	if err := json.Unmarshal([]byte(`{"fullTiffin": 80, "rice": "20.5", "curd": null}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.FullTiffin != Units(80) || p.Rice.Cents != 2050 || p.Curd.Cents != 0 {
		t.Fatalf("decoded %+v", p)
	}
	b, err := json.Marshal(Money{Cents: 2050})
	if err != nil || string(b) != "20.5" {
		t.Fatalf("marshal = %s, %v", b, err)
	}
}

func TestMoneyJSONRejectsHugeAmounts(t *testing.T) {
	var item CustomItem
	err := json.Unmarshal([]byte(`{"name":"x","price":200000000000000000}`), &item)
	if !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("got %v (cents %d), want ErrAmountTooLarge", err, item.Price.Cents)
	}
	if err := json.Unmarshal([]byte(`{"name":"x","price":"-200000000000000000"}`), &item); !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("negative overflow: got %v", err)
	}
}

func TestMoneyArithmeticSaturates(t *testing.T) {
	cases := []struct {
		name string
		got  Money
		want int64
	}{
		{"add overflow", Money{Cents: math.MaxInt64}.Add(Money{Cents: 1}), math.MaxInt64},
		{"add underflow", Money{Cents: math.MinInt64}.Add(Money{Cents: -1}), math.MinInt64},
		{"add", Units(2).Add(Units(3)), 500},
		{"times overflow", Money{Cents: math.MaxInt64 / 2}.Times(3), math.MaxInt64},
		{"times negative overflow", Money{Cents: math.MaxInt64 / 2}.Times(-3), math.MinInt64},
		{"times", Units(7).Times(3), 2100},
		{"times zero", Money{Cents: math.MaxInt64}.Times(0), 0},
	}
	for _, tc := range cases {
		if tc.got.Cents != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, tc.got.Cents, tc.want)
		}
	}
}
